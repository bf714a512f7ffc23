package sshkeygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

const DefaultKeyName = "booner_ed25519"

// GenerateEd25519KeyPair writes an OpenSSH private key and an authorized_keys
// line. An existing private key is left untouched and created is false.
func GenerateEd25519KeyPair(privateKeyPath, publicKeyPath, comment string) (created bool, err error) {
	if _, err := os.Stat(privateKeyPath); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(privateKeyPath), 0700); err != nil {
		return false, fmt.Errorf("failed to create ssh directory: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return false, fmt.Errorf("failed to generate key pair: %w", err)
	}

	privKeyPEM, err := ssh.MarshalPrivateKey(privKey, comment)
	if err != nil {
		return false, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(privateKeyPath, pem.EncodeToMemory(privKeyPEM), 0600); err != nil {
		return false, fmt.Errorf("failed to write private key: %w", err)
	}

	line, err := AuthorizedKey(pubKey, comment)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(publicKeyPath, []byte(line), 0644); err != nil {
		return false, fmt.Errorf("failed to write public key: %w", err)
	}

	return true, nil
}

// AuthorizedKey formats pub as a single authorized_keys line ending in "\n".
func AuthorizedKey(pub ed25519.PublicKey, comment string) (string, error) {
	sshPubKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to create public key: %w", err)
	}
	line := ssh.MarshalAuthorizedKey(sshPubKey)
	if comment == "" {
		return string(line), nil
	}
	return string(line[:len(line)-1]) + " " + comment + "\n", nil
}

// DefaultKeyPaths returns ~/.ssh/<name> and ~/.ssh/<name>.pub.
func DefaultKeyPaths(name string) (string, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get home directory: %w", err)
	}
	private := filepath.Join(homeDir, ".ssh", name)
	return private, private + ".pub", nil
}
