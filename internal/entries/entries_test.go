package entries

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xen-troops/rouge/internal/config"
)

// fakeRunner records tool invocations. Copies are performed for real so
// that composition tests can inspect the produced bytes; formatting and
// decompression are no-ops.
type fakeRunner struct {
	calls []string
}

func (r *fakeRunner) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *fakeRunner) CopyAt(src string, dst *os.File, offset int64) error {
	r.record("copy %s @%d", filepath.Base(src), offset)
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	_, err = dst.WriteAt(data, offset)
	return err
}

func (r *fakeRunner) MkfsExt4(image, contentsDir string) error {
	r.record("mkfs.ext4 %s", filepath.Base(image))
	return nil
}

func (r *fakeRunner) MkfsVfat(image string) error {
	r.record("mkfs.vfat %s", filepath.Base(image))
	return nil
}

func (r *fakeRunner) VfatMkdir(image, dir string) error {
	r.record("mmd ::%s", dir)
	return nil
}

func (r *fakeRunner) VfatCopy(image, local, remote string) error {
	r.record("mcopy %s ::%s", filepath.Base(local), remote)
	return nil
}

func (r *fakeRunner) Simg2Img(src, dst string) error {
	r.record("simg2img %s", filepath.Base(src))
	// Copy as-is so the subsequent CopyAt has bytes to move.
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (r *fakeRunner) ResizeExt4(image string, size int64) error {
	r.record("resize2fs %s %d", filepath.Base(image), size)
	return nil
}

// testFactory builds a factory with a fresh fake runner.
func testFactory() (*Factory, *fakeRunner) {
	runner := &fakeRunner{}
	return &Factory{Runner: runner}, runner
}

// entryFromYAML constructs an entry from an inline YAML snippet.
func entryFromYAML(t *testing.T, f *Factory, text string) (Entry, error) {
	t.Helper()
	node, err := config.Parse([]byte(text), "test.yaml")
	require.NoError(t, err)
	return f.New(node)
}

func mustEntry(t *testing.T, f *Factory, text string) Entry {
	t.Helper()
	entry, err := entryFromYAML(t, f, text)
	require.NoError(t, err)
	return entry
}

// writeTestFile creates a file of the given size in dir.
func writeTestFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// outputFile creates an empty output image file for write tests.
func outputFile(t *testing.T, size int64) *os.File {
	t.Helper()
	out, err := os.CreateTemp(t.TempDir(), "out-*.img")
	require.NoError(t, err)
	t.Cleanup(func() { out.Close() })
	require.NoError(t, out.Truncate(size))
	return out
}

func TestFactoryDispatchesEveryType(t *testing.T) {
	for name, ctor := range entryTypes {
		assert.NotNil(t, ctor, name)
	}
	// The composite type dispatches back into the factory for its children,
	// which requires the registry to be populated before first use.
	f, _ := testFactory()
	entry := mustEntry(t, f,
		"type: gpt\npartitions:\n  p:\n    type: empty\n    size: \"1 MiB\"\n")
	assert.NotNil(t, entry)
}

func TestFactoryUnknownType(t *testing.T) {
	f, _ := testFactory()
	_, err := entryFromYAML(t, f, "type: florp\n")
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "florp")
}

func TestFactoryMissingType(t *testing.T) {
	f, _ := testFactory()
	_, err := entryFromYAML(t, f, "size: \"1 MiB\"\n")
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "type")
}
