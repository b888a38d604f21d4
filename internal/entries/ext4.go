package entries

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/sizes"
	"github.com/xen-troops/rouge/internal/tools"
)

// ext4MetadataSlack is the fixed margin added on top of the payload bytes
// for filesystem metadata.
const ext4MetadataSlack = 2 * 1024 * 1024

// ext4 builds an ext4 filesystem holding the declared files.
type ext4 struct {
	runner   tools.Runner
	items    []fileItem
	declared int64
	loc      config.Location

	size  int64
	sized bool
}

func newExt4(f *Factory, node *config.Node) (Entry, error) {
	items, err := parseFileItems(node)
	if err != nil {
		return nil, err
	}
	declared, err := parseSizeField(node, "size")
	if err != nil {
		return nil, err
	}
	return &ext4{
		runner:   f.Runner,
		items:    items,
		declared: declared,
		loc:      node.Location(),
	}, nil
}

func (e *ext4) Size() (int64, error) {
	if e.sized {
		return e.size, nil
	}
	content, err := contentSize(e.items)
	if err != nil {
		return 0, err
	}
	computed := content + ext4MetadataSlack
	if e.declared == 0 {
		e.size = computed
	} else {
		if computed > e.declared {
			return 0, oversizeErrorf(e.loc,
				"computed size %s is bigger than the declared size %s",
				sizes.HumanReadable(computed), sizes.HumanReadable(e.declared))
		}
		e.size = e.declared
	}
	e.sized = true
	return e.size, nil
}

func (e *ext4) Write(out *os.File, offset int64) error {
	size, err := e.Size()
	if err != nil {
		return err
	}
	stagingDir, err := os.MkdirTemp("", "rouge-ext4-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	if err := stageItems(e.items, stagingDir); err != nil {
		return err
	}

	scratch, err := os.CreateTemp(filepath.Dir(out.Name()), "rouge-ext4-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())

	if err := scratch.Truncate(size); err != nil {
		scratch.Close()
		return fmt.Errorf("failed to size scratch file: %w", err)
	}
	scratch.Close()

	contents := stagingDir
	if len(e.items) == 0 {
		contents = ""
	}
	if err := e.runner.MkfsExt4(scratch.Name(), contents); err != nil {
		return err
	}
	return e.runner.CopyAt(scratch.Name(), out, offset)
}

func (e *ext4) Deps() []string {
	return itemDeps(e.items)
}
