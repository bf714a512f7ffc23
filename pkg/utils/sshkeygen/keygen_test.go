package sshkeygen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestGenerateEd25519KeyPair(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "ssh", "booner_ed25519")
	pub := priv + ".pub"

	created, err := GenerateEd25519KeyPair(priv, pub, "booner-test")
	require.NoError(t, err)
	assert.True(t, created)

	privBytes, err := os.ReadFile(priv)
	require.NoError(t, err)
	_, err = ssh.ParsePrivateKey(privBytes)
	require.NoError(t, err)

	pubBytes, err := os.ReadFile(pub)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pubBytes), "ssh-ed25519 "))
	assert.True(t, strings.HasSuffix(string(pubBytes), " booner-test\n"))

	created, err = GenerateEd25519KeyPair(priv, pub, "booner-test")
	require.NoError(t, err)
	assert.False(t, created, "existing key is kept")
}
