package entries

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xen-troops/rouge/internal/config"
)

// fileItem is one destination -> source pair of a filesystem entry.
type fileItem struct {
	remote string
	local  string
	loc    config.Location
}

// parseFileItems reads the optional "files" mapping of a filesystem entry.
func parseFileItems(node *config.Node) ([]fileItem, error) {
	filesNode, err := node.Get("files")
	if err != nil || filesNode == nil {
		return nil, err
	}
	pairs, err := filesNode.Pairs()
	if err != nil {
		return nil, err
	}
	items := make([]fileItem, 0, len(pairs))
	for _, pair := range pairs {
		local, err := pair.Value.String()
		if err != nil {
			return nil, err
		}
		items = append(items, fileItem{
			remote: path.Clean("/" + pair.Key),
			local:  local,
			loc:    pair.Value.Location(),
		})
	}
	return items, nil
}

func itemDeps(items []fileItem) []string {
	deps := make([]string, 0, len(items))
	for _, item := range items {
		deps = append(deps, item.local)
	}
	return deps
}

// contentSize sums the payload bytes of all items, walking directory
// sources. Missing sources fail here, at sizing time.
func contentSize(items []fileItem) (int64, error) {
	var total int64
	for _, item := range items {
		info, err := os.Stat(item.local)
		if err != nil {
			return 0, &MissingFileError{Path: item.local, Loc: item.loc}
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(item.local, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				info, err := d.Info()
				if err != nil {
					return err
				}
				total += info.Size()
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("failed to walk %q: %w", item.local, err)
		}
	}
	return total, nil
}

// payloadFile is a single regular file resolved from the items, with its
// final path inside the filesystem image.
type payloadFile struct {
	remote string
	local  string
	isLink bool
}

// resolvePayload expands directory sources into their contained files.
// Symbolic links are flagged so filesystem writers without a link concept
// can skip them.
func resolvePayload(items []fileItem) ([]payloadFile, error) {
	var files []payloadFile
	for _, item := range items {
		info, err := os.Lstat(item.local)
		if err != nil {
			return nil, &MissingFileError{Path: item.local, Loc: item.loc}
		}
		if !info.IsDir() {
			files = append(files, payloadFile{
				remote: item.remote,
				local:  item.local,
				isLink: info.Mode()&fs.ModeSymlink != 0,
			})
			continue
		}
		err = filepath.WalkDir(item.local, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(item.local, p)
			if err != nil {
				return err
			}
			files = append(files, payloadFile{
				remote: path.Join(item.remote, filepath.ToSlash(rel)),
				local:  p,
				isLink: d.Type()&fs.ModeSymlink != 0,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %q: %w", item.local, err)
		}
	}
	return files, nil
}

// parentDirs returns every directory that must exist for the given files,
// deduplicated and ordered by increasing path depth so that parents always
// come before children.
func parentDirs(files []payloadFile) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, f := range files {
		for dir := path.Dir(f.remote); dir != "/" && dir != "."; dir = path.Dir(dir) {
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}
	sort.Slice(dirs, func(i, j int) bool {
		di := strings.Count(dirs[i], "/")
		dj := strings.Count(dirs[j], "/")
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}

// stageItems copies all items into a staging directory preserving their
// destination paths, for filesystem tools that build an image from a
// directory tree.
func stageItems(items []fileItem, stagingDir string) error {
	for _, item := range items {
		dst := filepath.Join(stagingDir, filepath.FromSlash(item.remote))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to create staging directory: %w", err)
		}
		info, err := os.Stat(item.local)
		if err != nil {
			return &MissingFileError{Path: item.local, Loc: item.loc}
		}
		if info.IsDir() {
			err = copyTree(item.local, dst)
		} else {
			err = copyFile(item.local, dst)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %q: %w", src, err)
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(p, target)
		}
	})
}
