package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	_, err = ComputeBlake3Hash(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLockAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "state:\n  path: ./s.db\n")

	err := Verify(path)
	assert.True(t, errors.Is(err, ErrNoChecksums))

	report, err := Lock(path, true)
	require.NoError(t, err)
	assert.False(t, report.Written)
	_, statErr := os.Stat(report.ChecksumPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	report, err = Lock(path, false)
	require.NoError(t, err)
	assert.True(t, report.Written)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "config.yaml", report.Files[0].Filename)

	require.NoError(t, Verify(path))
	_, err = Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("state:\n  path: ./other.db\n"), 0644))
	assert.ErrorContains(t, Verify(path), "hash mismatch for config.yaml")
	_, err = Load(path)
	assert.ErrorContains(t, err, "hash mismatch")
}

func TestLockIncludesDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "tokens:\n  a: ${A_FROM_DOTENV}\n")
	envPath := filepath.Join(dir, DotEnvFile)
	require.NoError(t, os.WriteFile(envPath, []byte("A_FROM_DOTENV=1\n"), 0600))

	report, err := Lock(path, false)
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	require.NoError(t, Verify(path))

	require.NoError(t, os.WriteFile(envPath, []byte("A_FROM_DOTENV=2\n"), 0600))
	assert.ErrorContains(t, Verify(path), "hash mismatch for .env")

	require.NoError(t, os.Remove(envPath))
	assert.ErrorContains(t, Verify(path), "missing from disk")
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 2\nhashes: {}\n"), 0600))

	_, err := LoadChecksums(dir)
	assert.ErrorContains(t, err, "unsupported checksums version")
}
