// Package tools wraps the external programs the image composer shells out
// to: filesystem formatting (mkfs.ext4, mkfs.vfat), mtools for populating
// vfat images, simg2img for Android sparse decompression and resize2fs for
// growing ext filesystems. The Runner interface is the injection point; the
// exec-backed implementation is the production one and tests substitute a
// recording fake.
package tools

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// Runner is the capability interface for all external-tool operations the
// block entries need. Every call blocks until the tool finishes.
type Runner interface {
	// CopyAt copies the whole source file into dst at the given byte
	// offset, the dd-equivalent of the composer.
	CopyAt(src string, dst *os.File, offset int64) error
	// MkfsExt4 formats image as ext4, populated from contentsDir when it
	// is non-empty.
	MkfsExt4(image, contentsDir string) error
	// MkfsVfat formats image as FAT.
	MkfsVfat(image string) error
	// VfatMkdir creates one directory inside a vfat image. The underlying
	// tool cannot create nested paths, so callers create parents first.
	VfatMkdir(image, dir string) error
	// VfatCopy copies a local file into a vfat image at the given path.
	VfatCopy(image, local, remote string) error
	// Simg2Img expands an Android sparse image into dst.
	Simg2Img(src, dst string) error
	// ResizeExt4 grows the ext filesystem in image to size bytes.
	ResizeExt4(image string, size int64) error
}

// Toolchain names the external programs an ExecRunner invokes.
type Toolchain struct {
	MkfsExt4 string `mapstructure:"mkfs_ext4"`
	MkfsVfat string `mapstructure:"mkfs_vfat"`
	Mmd      string `mapstructure:"mmd"`
	Mcopy    string `mapstructure:"mcopy"`
	Simg2Img string `mapstructure:"simg2img"`
	Resize2F string `mapstructure:"resize2fs"`
}

// DefaultToolchain returns the standard tool names.
func DefaultToolchain() Toolchain {
	return Toolchain{
		MkfsExt4: "mkfs.ext4",
		MkfsVfat: "mkfs.vfat",
		Mmd:      "mmd",
		Mcopy:    "mcopy",
		Simg2Img: "simg2img",
		Resize2F: "resize2fs",
	}
}

// ExecRunner runs the real tools via os/exec.
type ExecRunner struct {
	tc Toolchain
}

// NewExecRunner creates a Runner using the given toolchain.
func NewExecRunner(tc Toolchain) *ExecRunner {
	return &ExecRunner{tc: tc}
}

func (r *ExecRunner) run(name string, args ...string) error {
	slog.Info("running external tool", "cmd", name, "args", args)
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

const copyBlockSize = 64 * 1024

// CopyAt copies src into dst at offset. When dst is a regular file, blocks
// of zero bytes are skipped to keep it sparse; regular-file targets are
// always freshly truncated, so the skipped regions read as zeros anyway. A
// block device keeps whatever it held before, so every byte is written.
func (r *ExecRunner) CopyAt(src string, dst *os.File, offset int64) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", src, err)
	}
	defer in.Close()

	info, err := dst.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat copy target: %w", err)
	}
	skipZeros := info.Mode().IsRegular()

	buf := make([]byte, copyBlockSize)
	pos := offset
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if !skipZeros || !allZero(buf[:n]) {
				if _, werr := dst.WriteAt(buf[:n], pos); werr != nil {
					return fmt.Errorf("failed to write %q at offset %d: %w", src, pos, werr)
				}
			}
			pos += int64(n)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", src, err)
		}
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func (r *ExecRunner) MkfsExt4(image, contentsDir string) error {
	args := []string{"-F", "-q"}
	if contentsDir != "" {
		args = append(args, "-d", contentsDir)
	}
	return r.run(r.tc.MkfsExt4, append(args, image)...)
}

func (r *ExecRunner) MkfsVfat(image string) error {
	return r.run(r.tc.MkfsVfat, image)
}

func (r *ExecRunner) VfatMkdir(image, dir string) error {
	return r.run(r.tc.Mmd, "-i", image, "::"+dir)
}

func (r *ExecRunner) VfatCopy(image, local, remote string) error {
	return r.run(r.tc.Mcopy, "-i", image, local, "::"+remote)
}

func (r *ExecRunner) Simg2Img(src, dst string) error {
	return r.run(r.tc.Simg2Img, src, dst)
}

func (r *ExecRunner) ResizeExt4(image string, size int64) error {
	// resize2fs takes the new size in 512-byte units when given the "s"
	// suffix.
	return r.run(r.tc.Resize2F, image, strconv.FormatInt(size/512, 10)+"s")
}
