// Package filex reads provisioned secret material from disk.
package filex

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInsecurePermissions is returned when a secret file is readable by
// group or others.
var ErrInsecurePermissions = errors.New("secret file permissions too open")

// ReadSecretFile returns the trimmed content of path. Files with any group or
// other permission bits set are refused, as are empty files.
func ReadSecretFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return "", fmt.Errorf("%s: %w (%#o)", path, ErrInsecurePermissions, info.Mode().Perm())
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", fmt.Errorf("%s: empty secret file", path)
	}
	return s, nil
}
