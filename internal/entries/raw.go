package entries

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/sizes"
	"github.com/xen-troops/rouge/internal/tools"
)

// rawImage copies a pre-built image file into the output as-is. With the
// resize flag the filesystem inside the image is grown to the declared size
// first (ext family only).
type rawImage struct {
	runner   tools.Runner
	path     string
	declared int64
	resize   bool
	loc      config.Location

	size  int64
	sized bool
}

func newRawImage(f *Factory, node *config.Node) (Entry, error) {
	pathNode, err := node.MustGet("image_path")
	if err != nil {
		return nil, err
	}
	path, err := pathNode.String()
	if err != nil {
		return nil, err
	}
	declared, err := parseSizeField(node, "size")
	if err != nil {
		return nil, err
	}
	resize, err := node.GetBool("resize", false)
	if err != nil {
		return nil, err
	}
	return &rawImage{
		runner:   f.Runner,
		path:     path,
		declared: declared,
		resize:   resize,
		loc:      pathNode.Location(),
	}, nil
}

func (e *rawImage) Size() (int64, error) {
	if e.sized {
		return e.size, nil
	}
	info, err := os.Stat(e.path)
	if err != nil {
		return 0, &MissingFileError{Path: e.path, Loc: e.loc}
	}
	if e.declared == 0 {
		e.size = info.Size()
	} else {
		if info.Size() > e.declared && !e.resize {
			return 0, oversizeErrorf(e.loc,
				"file %q (%s) is bigger than the declared size %s", e.path,
				sizes.HumanReadable(info.Size()), sizes.HumanReadable(e.declared))
		}
		e.size = e.declared
	}
	e.sized = true
	return e.size, nil
}

func (e *rawImage) Write(out *os.File, offset int64) error {
	size, err := e.Size()
	if err != nil {
		return err
	}
	info, err := os.Stat(e.path)
	if err != nil {
		return &MissingFileError{Path: e.path, Loc: e.loc}
	}
	if !e.resize || info.Size() == size {
		return e.runner.CopyAt(e.path, out, offset)
	}
	return e.writeResized(out, offset, size)
}

// writeResized brings a scratch copy of the image to the declared size with
// resize2fs, then copies it. Only ext-family filesystems can be resized
// this way.
func (e *rawImage) writeResized(out *os.File, offset, size int64) error {
	isExt, err := hasExtSuperblock(e.path)
	if err != nil {
		return err
	}
	if !isExt {
		return badFormatErrorf(e.loc, "can't resize %q: not an ext filesystem", e.path)
	}

	scratch, err := os.CreateTemp(filepath.Dir(out.Name()), "rouge-resize-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())
	defer scratch.Close()

	if err := e.runner.CopyAt(e.path, scratch, 0); err != nil {
		return err
	}
	// Growing needs the backing file extended first; shrinking resizes the
	// filesystem before the file is cut down.
	info, err := scratch.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat scratch file: %w", err)
	}
	if info.Size() < size {
		if err := scratch.Truncate(size); err != nil {
			return fmt.Errorf("failed to grow scratch file: %w", err)
		}
	}
	if err := e.runner.ResizeExt4(scratch.Name(), size); err != nil {
		return err
	}
	if err := scratch.Truncate(size); err != nil {
		return fmt.Errorf("failed to trim scratch file: %w", err)
	}
	return e.runner.CopyAt(scratch.Name(), out, offset)
}

func (e *rawImage) Deps() []string {
	return []string{e.path}
}

// ext superblock location within the image: magic 0xEF53 at byte 56 of the
// superblock, which starts at byte 1024.
const (
	extSuperblockOffset = 1024 + 56
	extMagic            = 0xEF53
)

func hasExtSuperblock(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	var raw [2]byte
	if _, err := f.ReadAt(raw[:], extSuperblockOffset); err != nil {
		return false, nil
	}
	return binary.LittleEndian.Uint16(raw[:]) == extMagic, nil
}
