package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// RunDir is the on-disk working directory of a single run:
//
//	<root>/extra  files produced by cryoCARE and the generated configs
//	<root>/tmp    scratch space
type RunDir struct {
	Root string
}

func NewRunDir(root string) (RunDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return RunDir{}, fmt.Errorf("error resolving run dir %s: %w", root, err)
	}
	return RunDir{Root: abs}, nil
}

func (d RunDir) Path(parts ...string) string {
	return filepath.Join(append([]string{d.Root}, parts...)...)
}

func (d RunDir) ExtraPath(parts ...string) string {
	return filepath.Join(append([]string{d.Root, "extra"}, parts...)...)
}

func (d RunDir) TmpPath(parts ...string) string {
	return filepath.Join(append([]string{d.Root, "tmp"}, parts...)...)
}

func (d RunDir) Create() error {
	for _, dir := range []string{d.ExtraPath(), d.TmpPath()} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("error creating run directory %s: %w", dir, err)
		}
	}
	return nil
}

// CreateLink makes dst a symbolic link to src, replacing whatever dst was.
func CreateLink(src, dst string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("error resolving link source %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return fmt.Errorf("error creating parent directory for link %s: %w", dst, err)
	}

	if _, err := os.Lstat(dst); err == nil {
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("error removing existing %s: %w", dst, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error checking link destination %s: %w", dst, err)
	}

	if err := os.Symlink(absSrc, dst); err != nil {
		return fmt.Errorf("error linking %s to %s: %w", dst, absSrc, err)
	}
	return nil
}

// makeDatasetLinks links the train and validation datasets of trainDataDir
// into dir; prediction expects them next to the model.
func makeDatasetLinks(trainDataDir, dir string) error {
	for _, name := range []string{TrainDataFile, ValidationDataFile} {
		if err := CreateLink(filepath.Join(trainDataDir, name), filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func writeJSONConfig(path string, config any) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding config %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config %s: %w", path, err)
	}
	return nil
}
