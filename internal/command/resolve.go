package command

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LookPath resolves a command name to an executable path.
//
//   - /abs/path   → used as-is
//   - ./rel/path  → resolved against the working directory
//   - name        → searched in $PATH
func LookPath(name string) (string, error) {
	if !strings.ContainsRune(name, filepath.Separator) {
		path, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("command not found: %s", name)
		}
		return path, nil
	}

	path, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", name, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("command not found: %s", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("command is a directory: %s", path)
	}
	if info.Mode()&0111 == 0 {
		return "", fmt.Errorf("command is not executable: %s", path)
	}
	return path, nil
}
