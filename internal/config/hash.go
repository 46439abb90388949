package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest written next to the config file.
const ChecksumFile = ".checksums"

// ErrNoChecksums reports that the config directory has never been locked.
var ErrNoChecksums = errors.New("checksums file not found (run 'docscribe config lock')")

// ChecksumManifest maps file names in the config directory to BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// HashUpdateFileResult captures checksum generation outcome for one file.
type HashUpdateFileResult struct {
	Filename string
	Path     string
	Hash     string
}

// HashUpdateReport captures checksum generation details for a config directory.
type HashUpdateReport struct {
	ConfigDir    string
	ChecksumPath string
	Written      bool
	Files        []HashUpdateFileResult
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// lockedFiles returns the config file and, if present, the .env beside it.
func lockedFiles(configPath string) []string {
	files := []string{filepath.Base(configPath)}
	if _, err := os.Stat(filepath.Join(filepath.Dir(configPath), DotEnvFile)); err == nil {
		files = append(files, DotEnvFile)
	}
	return files
}

// Lock hashes the config file (and .env) and writes the manifest. When
// dryRun is true the report is returned without writing.
func Lock(configPath string, dryRun bool) (*HashUpdateReport, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(absPath)

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}
	report := &HashUpdateReport{
		ConfigDir:    dir,
		ChecksumPath: filepath.Join(dir, ChecksumFile),
	}

	for _, name := range lockedFiles(absPath) {
		path := filepath.Join(dir, name)
		hash, err := ComputeBlake3Hash(path)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", name, err)
		}
		manifest.Hashes[name] = hash
		report.Files = append(report.Files, HashUpdateFileResult{Filename: name, Path: path, Hash: hash})
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the manifest from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoChecksums
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// Verify checks the config file (and .env) against the manifest. It returns
// ErrNoChecksums when no manifest exists.
func Verify(configPath string) error {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)

	manifest, err := LoadChecksums(dir)
	if err != nil {
		return err
	}

	present := lockedFiles(absPath)
	for _, name := range present {
		expected, ok := manifest.Hashes[name]
		if !ok {
			return fmt.Errorf("%s has no hash in checksums (run 'docscribe config lock')", name)
		}
		actual, err := ComputeBlake3Hash(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to compute hash: %w", err)
		}
		if actual != expected {
			return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
				"If you edited this file intentionally, run: docscribe config lock", name, expected, actual)
		}
	}

	if _, ok := manifest.Hashes[DotEnvFile]; ok && len(present) == 1 {
		return fmt.Errorf("%s is in checksums but missing from disk", DotEnvFile)
	}
	return nil
}
