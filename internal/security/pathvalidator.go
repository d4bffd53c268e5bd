// Package security validates file names and confines vault file
// operations to their directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrPathEscapes  = errors.New("path escapes its directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
	ErrNotAName     = errors.New("path must be a single file name")
)

// BackupSuffix is appended to a file name to form its backup sibling.
const BackupSuffix = ".backup"

// ValidateName accepts exactly one local path element: no separators, no
// "." or "..", nothing absolute and no reserved names.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyPath
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %s", ErrAbsolutePath, name)
	}
	if name == "." || name == ".." || !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %s", ErrPathEscapes, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %s", ErrNotAName, name)
	}
	return nil
}

// Layout is where the vault and its backup live on the remote side.
// Paths use forward slashes regardless of platform.
type Layout struct {
	Dir    string
	File   string
	Backup string
}

// RemoteLayout builds <appName>/<fileName> and its backup sibling.
func RemoteLayout(appName, fileName string) (Layout, error) {
	if err := ValidateName(appName); err != nil {
		return Layout{}, fmt.Errorf("invalid application name: %w", err)
	}
	if err := ValidateName(fileName); err != nil {
		return Layout{}, fmt.Errorf("invalid vault file name: %w", err)
	}
	file := path.Join(appName, fileName)
	return Layout{Dir: appName, File: file, Backup: file + BackupSuffix}, nil
}

// Dir confines file operations to one directory using os.Root.
type Dir struct {
	root *os.Root
	path string
}

// OpenDir opens the directory at dirPath.
func OpenDir(dirPath string) (*Dir, error) {
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}
	return &Dir{root: root, path: absPath}, nil
}

func (d *Dir) Close() error {
	if d.root != nil {
		return d.root.Close()
	}
	return nil
}

// Path returns the absolute path of name inside the directory.
func (d *Dir) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.path, name), nil
}

// CreateExclusive creates name, failing if it already exists.
func (d *Dir) CreateExclusive(name string, perm os.FileMode) (*os.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return d.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}

func (d *Dir) Open(name string) (*os.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return d.root.Open(name)
}

func (d *Dir) Stat(name string) (os.FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return d.root.Stat(name)
}

func (d *Dir) Remove(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return d.root.Remove(name)
}

// Rename replaces newName with oldName. Both must be names inside the
// directory.
func (d *Dir) Rename(oldName, newName string) error {
	oldPath, err := d.Path(oldName)
	if err != nil {
		return err
	}
	newPath, err := d.Path(newName)
	if err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}

// Chtimes sets the access and modification time of name.
func (d *Dir) Chtimes(name string, atime, mtime time.Time) error {
	p, err := d.Path(name)
	if err != nil {
		return err
	}
	return os.Chtimes(p, atime, mtime)
}
