package entries

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/sizes"
	"github.com/xen-troops/rouge/internal/tools"
)

// vfatMetadataSlack is the fixed margin added on top of the payload bytes
// for FAT tables and directory entries.
const vfatMetadataSlack = 1024 * 1024

// vfat builds a FAT filesystem holding the declared files. The image is
// populated with mtools, which cannot create nested paths in one call:
// parent directories are created first, in increasing depth order.
type vfat struct {
	runner   tools.Runner
	items    []fileItem
	declared int64
	loc      config.Location

	size  int64
	sized bool
}

func newVfat(f *Factory, node *config.Node) (Entry, error) {
	items, err := parseFileItems(node)
	if err != nil {
		return nil, err
	}
	declared, err := parseSizeField(node, "size")
	if err != nil {
		return nil, err
	}
	return &vfat{
		runner:   f.Runner,
		items:    items,
		declared: declared,
		loc:      node.Location(),
	}, nil
}

func (e *vfat) Size() (int64, error) {
	if e.sized {
		return e.size, nil
	}
	content, err := contentSize(e.items)
	if err != nil {
		return 0, err
	}
	computed := content + vfatMetadataSlack
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

func (e *vfat) Write(out *os.File, offset int64) error {
	size, err := e.Size()
	if err != nil {
		return err
	}
	payload, err := resolvePayload(e.items)
	if err != nil {
		return err
	}

	scratch, err := os.CreateTemp(filepath.Dir(out.Name()), "rouge-vfat-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())

	if err := scratch.Truncate(size); err != nil {
		scratch.Close()
		return fmt.Errorf("failed to size scratch file: %w", err)
	}
	scratch.Close()

	if err := e.runner.MkfsVfat(scratch.Name()); err != nil {
		return err
	}

	// FAT has no symbolic links; links in the payload are skipped.
	files := payload[:0]
	for _, f := range payload {
		if f.isLink {
			slog.Warn("skipping symbolic link, vfat can't store it", "path", f.local)
			continue
		}
		files = append(files, f)
	}

	for _, dir := range parentDirs(files) {
		if err := e.runner.VfatMkdir(scratch.Name(), dir); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := e.runner.VfatCopy(scratch.Name(), f.local, f.remote); err != nil {
			return err
		}
	}
	return e.runner.CopyAt(scratch.Name(), out, offset)
}

func (e *vfat) Deps() []string {
	return itemDeps(e.items)
}
