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

// Android sparse image header, little-endian:
// magic u32, major u16, minor u16, file_hdr_sz u16, chunk_hdr_sz u16,
// blk_sz u32, total_blks u32, total_chunks u32, image_checksum u32.
const (
	sparseMagic      = 0xED26FF3A
	sparseHeaderSize = 28
)

// androidSparse represents an Android sparse image, which is decompressed
// with simg2img before being copied into the output.
type androidSparse struct {
	runner   tools.Runner
	path     string
	declared int64
	loc      config.Location

	size  int64
	sized bool
}

func newAndroidSparse(f *Factory, node *config.Node) (Entry, error) {
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
	return &androidSparse{
		runner:   f.Runner,
		path:     path,
		declared: declared,
		loc:      pathNode.Location(),
	}, nil
}

// expandedSize reads the sparse header and computes the unsparsed size.
func (e *androidSparse) expandedSize() (int64, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return 0, &MissingFileError{Path: e.path, Loc: e.loc}
	}
	defer f.Close()

	var raw [sparseHeaderSize]byte
	n, err := f.Read(raw[:])
	if err != nil || n < sparseHeaderSize {
		return 0, badFormatErrorf(e.loc,
			"not enough data for Android sparse header in %q", e.path)
	}
	if magic := binary.LittleEndian.Uint32(raw[0:4]); magic != sparseMagic {
		return 0, badFormatErrorf(e.loc,
			"invalid Android sparse magic 0x%08X in %q", magic, e.path)
	}
	blockSize := int64(binary.LittleEndian.Uint32(raw[12:16]))
	totalBlocks := int64(binary.LittleEndian.Uint32(raw[16:20]))
	return blockSize * totalBlocks, nil
}

func (e *androidSparse) Size() (int64, error) {
	if e.sized {
		return e.size, nil
	}
	expanded, err := e.expandedSize()
	if err != nil {
		return 0, err
	}
	if e.declared == 0 {
		e.size = expanded
	} else {
		if expanded > e.declared {
			return 0, oversizeErrorf(e.loc,
				"un-sparsed %q (%s) is bigger than the declared size %s", e.path,
				sizes.HumanReadable(expanded), sizes.HumanReadable(e.declared))
		}
		e.size = e.declared
	}
	e.sized = true
	return e.size, nil
}

func (e *androidSparse) Write(out *os.File, offset int64) error {
	if _, err := e.Size(); err != nil {
		return err
	}
	scratch, err := os.CreateTemp(filepath.Dir(out.Name()), "rouge-simg-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())
	scratch.Close()

	if err := e.runner.Simg2Img(e.path, scratch.Name()); err != nil {
		return err
	}
	return e.runner.CopyAt(scratch.Name(), out, offset)
}

func (e *androidSparse) Deps() []string {
	return []string{e.path}
}
