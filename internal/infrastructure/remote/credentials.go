package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/booner/backend/internal/domain"
	"github.com/booner/backend/pkg/utils/crypto"
)

type credentials struct {
	User       string
	Password   string
	PrivateKey string
}

// resolveCredentials turns a target's access reference into usable SSH
// credentials. Sealed passwords (crypto.SealedPrefix) are decrypted with
// encryptionKey.
func resolveCredentials(ref domain.AccessRef, encryptionKey string) (*credentials, error) {
	creds := &credentials{User: ref.User}
	if creds.User == "" {
		creds.User = "root"
	}

	if ref.KeyPath != "" {
		path, err := expandHome(ref.KeyPath)
		if err != nil {
			return nil, err
		}
		key, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read key %s: %v", ErrSSHAuthentication, path, err)
		}
		creds.PrivateKey = string(key)
	}

	if ref.Password != "" {
		plain, err := crypto.Open(ref.Password, encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt password: %v", ErrSSHAuthentication, err)
		}
		creds.Password = plain
	}

	if creds.PrivateKey == "" && creds.Password == "" {
		return nil, fmt.Errorf("%w: target has no key_path or password", ErrSSHAuthentication)
	}
	return creds, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
