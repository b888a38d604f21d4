package image

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xen-troops/rouge/internal/config"
	"github.com/xen-troops/rouge/internal/entries"
	"github.com/xen-troops/rouge/internal/tools"
)

// stubEntry writes a fixed payload at the requested offset.
type stubEntry struct {
	size    int64
	payload []byte
}

func (e *stubEntry) Size() (int64, error) { return e.size, nil }

func (e *stubEntry) Write(out *os.File, offset int64) error {
	_, err := out.WriteAt(e.payload, offset)
	return err
}

func (e *stubEntry) Deps() []string { return nil }

func TestAssembleCreatesTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	root := &stubEntry{size: 4096, payload: []byte("payload")}

	require.NoError(t, Assemble(root, path, Options{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data[:7])
}

func TestAssembleRefusesExistingTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0o644))

	err := Assemble(&stubEntry{size: 1024}, path, Options{})
	var target *TargetError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, path, target.Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("precious"), data, "refused target must be untouched")
}

func TestAssembleForceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 1<<20), 0o644))

	require.NoError(t, Assemble(&stubEntry{size: 4096, payload: []byte("new")}, path, Options{Force: true}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size(), "target is reallocated to the computed size")
}

func TestAssembleForceClearsStaleBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	// Same size as the rebuilt image, so plain reallocation would keep the
	// old content.
	stale := make([]byte, 4096)
	for i := range stale {
		stale[i] = 0xFF
	}
	require.NoError(t, os.WriteFile(path, stale, 0o644))

	require.NoError(t, Assemble(&stubEntry{size: 4096, payload: []byte("new")}, path, Options{Force: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data[:3])
	assert.Equal(t, make([]byte, 4093), data[3:], "unwritten regions must read as zeros, not stale data")
}

func TestAssembleOverwriteWithZeroPayload(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "zeros.img")
	require.NoError(t, os.WriteFile(src, make([]byte, 1<<20), 0o644))

	path := filepath.Join(dir, "disk.img")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xFF}, 1<<20), 0o644))

	// Real runner: its sparse-aware copy skips the all-zero payload, which
	// must still leave the rebuilt image reading as zeros.
	f := &entries.Factory{Runner: tools.NewExecRunner(tools.DefaultToolchain())}
	node, err := config.Parse([]byte("type: raw_image\nimage_path: "+src+"\n"), "test.yaml")
	require.NoError(t, err)
	root, err := f.New(node)
	require.NoError(t, err)

	require.NoError(t, Assemble(root, path, Options{Force: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 1<<20), data,
		"overwritten image must contain the payload's zero bytes")
}

func TestAssembleRefusesDirectoryTarget(t *testing.T) {
	err := Assemble(&stubEntry{size: 1024}, t.TempDir(), Options{Force: true})
	var target *TargetError
	require.ErrorAs(t, err, &target)
	assert.Contains(t, target.Msg, "neither")
}
