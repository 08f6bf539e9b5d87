// Package dotdir resolves the .parley/ directory that holds config.toml,
// the default sqlite-vec index and the serve log file.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the parley directory.
	dirName = ".parley"

	ConfigFile = "config.toml"
	IndexFile  = "parley.db"
	LogFile    = "parley.log"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .parley/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.parley/ dir
//  3. Home ~/.parley/ dir (created when missing)
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parley directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path joins name onto the resolved .parley/ directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// InitLocal creates ./.parley/ in the current working directory. created is
// false when the directory was already there.
func (m *Manager) InitLocal() (dir string, created bool, err error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("getting current directory: %w", err)
	}
	dir = filepath.Join(cwd, dirName)

	if m.localDirExists() {
		return dir, false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating parley directory %s: %w", dir, err)
	}
	return dir, true, nil
}

// localDirExists checks whether a .parley/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
