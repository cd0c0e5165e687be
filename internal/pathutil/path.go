package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandUserAndEnv expands shell-style path components in p.
// It supports:
//   - environment variable tokens via os.ExpandEnv (for example $HOME, ${HOME})
//   - leading "~/" or "~\" to the current user's home directory
//
// The returned path is not normalized to absolute form.
func ExpandUserAndEnv(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return p, nil
}

// Canonical expands p and returns it as a clean absolute path. Two spellings
// of the same directory ("./data/../data/", "$PWD/data") map to one string.
// Symlinks are not resolved; the target may not exist yet.
func Canonical(p string) (string, error) {
	expanded, err := ExpandUserAndEnv(p)
	if err != nil {
		return "", fmt.Errorf("pathutil: expand %q: %w", p, err)
	}
	if expanded == "" {
		return "", fmt.Errorf("pathutil: empty path")
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("pathutil: absolute %q: %w", expanded, err)
	}
	return filepath.Clean(abs), nil
}
