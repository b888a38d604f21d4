// Package entries implements the block entry tree an image is composed of.
// Every entry knows its own byte size, how to materialize itself at a byte
// offset inside the output image, and which source files it depends on.
// Entries form a strict tree; the gpt entry is the only composite and makes
// nested partition tables possible.
package entries

import (
	"fmt"
	"os"

	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/gpt"
	"github.com/xen-troops/rouge/internal/sizes"
	"github.com/xen-troops/rouge/internal/tools"
)

// Entry is a node of the image composition tree.
//
// Size computes the byte size of the entry on first call and memoizes it;
// sizing the whole tree must complete before any write, because a partition
// table needs every child size to lay out offsets. Write materializes
// exactly Size() bytes starting at the given offset (entries that keep the
// target untouched, like an unfilled empty region, are no-ops). Deps lists
// the source files the entry is built from without touching the filesystem,
// so build-graph wiring stays cheap and infallible.
type Entry interface {
	Size() (int64, error)
	Write(out *os.File, offset int64) error
	Deps() []string
}

// Factory creates entries from configuration nodes.
type Factory struct {
	Runner    tools.Runner
	Alignment int64
	Reserve   int64
}

type constructor func(*Factory, *config.Node) (Entry, error)

// entryTypes is filled in init: newGPT constructs children through
// Factory.New, so a composite literal here would be an initialization cycle.
var entryTypes map[string]constructor

func init() {
	entryTypes = map[string]constructor{
		"gpt":            newGPT,
		"raw_image":      newRawImage,
		"android_sparse": newAndroidSparse,
		"empty":          newEmpty,
		"ext4":           newExt4,
		"vfat":           newVfat,
	}
}

// New constructs the entry described by a configuration node, dispatching on
// its mandatory "type" field.
func (f *Factory) New(node *config.Node) (Entry, error) {
	typeNode, err := node.MustGet("type")
	if err != nil {
		return nil, err
	}
	typeName, err := typeNode.String()
	if err != nil {
		return nil, err
	}
	ctor, ok := entryTypes[typeName]
	if !ok {
		return nil, config.NewError(typeNode.Location(), "unknown entry type %q", typeName)
	}
	return ctor(f, node)
}

// MissingFileError reports a declared source file or directory that does not
// exist when sizing or writing begins.
type MissingFileError struct {
	Path string
	Loc  config.Location
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("can't find file %q (%s)", e.Path, e.Loc)
}

// OversizeError reports a payload that does not fit the declared size.
type OversizeError struct {
	Msg string
	Loc config.Location
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Msg, e.Loc)
}

func oversizeErrorf(loc config.Location, format string, args ...any) *OversizeError {
	return &OversizeError{Msg: fmt.Sprintf(format, args...), Loc: loc}
}

// BadFormatError reports a malformed or unsupported payload format: a broken
// sparse image header, or a resize request against a non-ext filesystem.
type BadFormatError struct {
	Msg string
	Loc config.Location
}

func (e *BadFormatError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Msg, e.Loc)
}

func badFormatErrorf(loc config.Location, format string, args ...any) *BadFormatError {
	return &BadFormatError{Msg: fmt.Sprintf(format, args...), Loc: loc}
}

// parseSizeField reads an optional size field. Returns 0 when the field is
// absent; size literals of zero are not meaningful for any entry type.
func parseSizeField(node *config.Node, key string) (int64, error) {
	sizeNode, err := node.Get(key)
	if err != nil || sizeNode == nil {
		return 0, err
	}
	text, err := sizeNode.String()
	if err != nil {
		return 0, err
	}
	size, err := sizes.Parse(text)
	if err != nil {
		return 0, config.NewError(sizeNode.Location(), "%v", err)
	}
	return size, nil
}

// layoutOptions builds the gpt layout options from factory settings.
func (f *Factory) layoutOptions() gpt.Options {
	return gpt.Options{Alignment: f.Alignment, Reserve: f.Reserve}
}
