package pathutil

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

var errHomeUnresolved = errors.New("home directory is not resolvable")

// Expand resolves $VARS and a leading "~" then cleans the result.
// An empty path stays empty.
func Expand(path string) (string, error) {
	p := os.ExpandEnv(strings.TrimSpace(path))
	if p == "" {
		return "", nil
	}

	rest, hasHome := cutHome(p)
	if !hasHome {
		return filepath.Clean(p), nil
	}

	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, rest), nil
}

// EnsureParent expands path and creates its parent directory.
func EnsureParent(path string) (string, error) {
	target, err := Expand(path)
	if err != nil {
		return "", err
	}
	if target == "" {
		return "", fmt.Errorf("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	return target, nil
}

func cutHome(p string) (string, bool) {
	if p == "~" {
		return "", true
	}
	rest, ok := strings.CutPrefix(p, "~/")
	return rest, ok
}

// homeDir tries os.UserHomeDir, the user database, then $HOME, skipping
// candidates that are themselves unexpanded.
func homeDir() (string, error) {
	candidates := make([]string, 0, 3)
	if h, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, h)
	}
	if u, err := user.Current(); err == nil {
		candidates = append(candidates, u.HomeDir)
	}
	candidates = append(candidates, os.Getenv("HOME"))

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if _, unexpanded := cutHome(c); c != "" && !unexpanded {
			return c, nil
		}
	}
	return "", errHomeUnresolved
}
