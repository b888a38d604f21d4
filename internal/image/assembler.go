// Package image drives the composition of a disk image: it validates the
// output target, allocates it to the computed size and writes the root
// entry at offset zero.
package image

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/xen-troops/rouge/internal/entries"
	"github.com/xen-troops/rouge/internal/sizes"
)

// TargetError reports an output path that must not be written: an existing
// file without the force flag, a block device without the explicit
// allowance, or a path of unsupported type.
type TargetError struct {
	Path string
	Msg  string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Options control target validation.
type Options struct {
	// Force allows overwriting an existing regular file.
	Force bool
	// AllowBlockDevice allows writing straight to a block device.
	AllowBlockDevice bool
}

// Assemble sizes the whole entry tree, prepares the output file and writes
// the root entry into it. A fatal error anywhere aborts the build; a
// partially written output is left on disk for the caller to deal with.
func Assemble(root entries.Entry, outputPath string, opts Options) error {
	size, err := root.Size()
	if err != nil {
		return err
	}
	slog.Info("assembling image", "path", outputPath, "size", sizes.HumanReadable(size))

	out, blockDevice, err := openTarget(outputPath, opts)
	if err != nil {
		return err
	}
	defer out.Close()

	// A block device has a fixed size; regular files are allocated upfront.
	// An overwritten file is cut to zero first so that no stale bytes
	// survive under sparse payload regions.
	if !blockDevice {
		if err := out.Truncate(0); err != nil {
			return fmt.Errorf("failed to clear %q: %w", outputPath, err)
		}
		if err := out.Truncate(size); err != nil {
			return fmt.Errorf("failed to allocate %q: %w", outputPath, err)
		}
	}
	if err := root.Write(out, 0); err != nil {
		return err
	}
	return out.Close()
}

func openTarget(path string, opts Options) (*os.File, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("failed to stat %q: %w", path, err)
		}
		out, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create %q: %w", path, err)
		}
		return out, false, nil
	}

	switch {
	case info.Mode().IsRegular():
		if !opts.Force {
			return nil, false, &TargetError{Path: path,
				Msg: "already exists, use the force flag to overwrite"}
		}
	case info.Mode()&fs.ModeDevice != 0 && info.Mode()&fs.ModeCharDevice == 0:
		if !opts.AllowBlockDevice {
			return nil, false, &TargetError{Path: path,
				Msg: "is a block device, pass the special-target flag to write it"}
		}
		out, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, false, fmt.Errorf("failed to open device %q: %w", path, err)
		}
		return out, true, nil
	default:
		return nil, false, &TargetError{Path: path, Msg: "is neither a regular file nor a block device"}
	}

	out, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open %q: %w", path, err)
	}
	return out, false, nil
}
