// Package workspace extracts project archives and stages their modules for inspection.
package workspace

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"acuvalidator/internal/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidArchive is returned when the package path is not a readable zip archive.
	ErrInvalidArchive = errors.New("invalid package archive")
	// ErrInvalidBinPath is returned when the extracted project has no module directory.
	ErrInvalidBinPath = errors.New("project bin path not found")
)

const (
	dirName  = "Acuvalidator"
	tempName = "Temp"
)

// DefaultRoot is <home>/Documents/Acuvalidator, or a directory under the system temp dir when
// the home directory is unknown.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), dirName)
	}
	return filepath.Join(home, "Documents", dirName)
}

// Workspace owns the extraction root and its Temp staging area.
type Workspace struct {
	root string
	log  *logrus.Entry
}

func New(root string) (*Workspace, error) {
	if root == "" {
		root = DefaultRoot()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{root: root, log: logging.WithComponent("workspace")}, nil
}

func (w *Workspace) Root() string    { return w.root }
func (w *Workspace) TempDir() string { return filepath.Join(w.root, tempName) }

// PurgeTemp removes every staging copy left by earlier runs.
func (w *Workspace) PurgeTemp() error {
	if err := forceRemove(w.TempDir()); err != nil {
		return fmt.Errorf("failed to purge %s: %w", w.TempDir(), err)
	}
	return nil
}

// Project is an extracted archive.
type Project struct {
	Archive   string
	Dir       string // extraction directory
	BinDir    string // module directory inside Dir
	ModuleDir string // staging copy of BinDir
	log       *logrus.Entry
}

// Prepare purges the staging area, extracts archive into <root>/<archive name> (replacing an
// earlier extraction) and copies its bin directory into Temp/<uuid>.
func (w *Workspace) Prepare(archive, binDir string) (*Project, error) {
	info, err := os.Stat(archive)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidArchive, archive)
	}

	if err := w.PurgeTemp(); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer zr.Close()

	p := &Project{
		Archive: archive,
		Dir:     filepath.Join(w.root, ProjectName(archive)),
		log:     w.log.WithField("archive", filepath.Base(archive)),
	}
	if err := forceRemove(p.Dir); err != nil {
		return nil, fmt.Errorf("failed to remove previous extraction: %w", err)
	}
	if err := extractAll(&zr.Reader, p.Dir); err != nil {
		_ = forceRemove(p.Dir)
		return nil, err
	}
	p.log.Debugf("Extracted %d entries into %s", len(zr.File), p.Dir)

	p.BinDir = filepath.Join(p.Dir, binDir)
	if st, err := os.Stat(p.BinDir); err != nil || !st.IsDir() {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidBinPath, p.BinDir)
	}

	p.ModuleDir = filepath.Join(w.TempDir(), uuid.NewString())
	if err := copyTree(p.BinDir, p.ModuleDir); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to stage modules: %w", err)
	}
	p.log.Debugf("Staged modules in %s", p.ModuleDir)
	return p, nil
}

// Close removes the extracted project. The staging copy stays until the next PurgeTemp.
func (p *Project) Close() error {
	if err := forceRemove(p.Dir); err != nil {
		p.log.Warnf("Failed to remove %s: %v", p.Dir, err)
		return err
	}
	return nil
}

// ProjectName is the archive file name up to its first dot.
func ProjectName(archive string) string {
	name := filepath.Base(archive)
	if len(name) > 1 {
		if i := strings.IndexByte(name[1:], '.'); i >= 0 {
			name = name[:i+1]
		}
	}
	return name
}

func extractAll(zr *zip.Reader, dest string) error {
	for _, f := range zr.File {
		name := filepath.FromSlash(strings.ReplaceAll(f.Name, `\`, "/"))
		target := filepath.Join(dest, name)
		if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
			return fmt.Errorf("%w: entry %q escapes the extraction directory", ErrInvalidArchive, f.Name)
		}

		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidArchive, f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// forceRemove clears read-only permissions before removing path. A missing path is not an error.
func forceRemove(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			_ = os.Chmod(p, 0o755)
		}
		return nil
	})
	return os.RemoveAll(path)
}
