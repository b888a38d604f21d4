package entries

import (
	"os"

	"github.com/xen-troops/rouge/internal/config"
)

// empty reserves a region of the image. Without the fill flag it writes
// nothing, leaving whatever the target medium already contains.
type empty struct {
	size int64
	fill bool
}

func newEmpty(f *Factory, node *config.Node) (Entry, error) {
	sizeNode, err := node.Get("size")
	if err != nil {
		return nil, err
	}
	if sizeNode == nil {
		return nil, config.NewError(node.Location(), "size is mandatory for 'empty' entry")
	}
	size, err := parseSizeField(node, "size")
	if err != nil {
		return nil, err
	}
	fill, err := node.GetBool("fill", false)
	if err != nil {
		return nil, err
	}
	return &empty{size: size, fill: fill}, nil
}

func (e *empty) Size() (int64, error) {
	return e.size, nil
}

const fillBlockSize = 1024 * 1024

func (e *empty) Write(out *os.File, offset int64) error {
	if !e.fill {
		return nil
	}
	zeros := make([]byte, fillBlockSize)
	for written := int64(0); written < e.size; {
		n := e.size - written
		if n > fillBlockSize {
			n = fillBlockSize
		}
		if _, err := out.WriteAt(zeros[:n], offset+written); err != nil {
			return err
		}
		written += n
	}
	return nil
}

func (e *empty) Deps() []string {
	return nil
}
