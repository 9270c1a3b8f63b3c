package config

import (
	"fmt"
	"path/filepath"
)

// VerifyIntegrity reports the lock state of a configuration file without
// failing on an unlocked one. A missing manifest is a warning, a mismatch
// is an error.
func VerifyIntegrity(configPath string) *IntegrityResult {
	result := &IntegrityResult{Passed: true}
	dir := filepath.Dir(configPath)

	manifest, err := LoadChecksums(dir)
	if err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s manifest found at %s; run 'automaton config lock' to enable integrity verification", ChecksumFilename, checksumPath(configPath)))
		return result
	}

	name := filepath.Base(configPath)
	expected, ok := manifest.Hashes[name]
	if !ok {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("file %s not in %s manifest", name, ChecksumFilename))
		return result
	}

	actual, err := ComputeBlake3Hash(configPath)
	if err != nil {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("failed to hash %s: %v", configPath, err))
		return result
	}
	if actual != expected {
		result.Passed = false
		result.Errors = append(result.Errors, fmt.Sprintf("hash mismatch for %s (expected %s, got %s)", name, expected, actual))
	}
	return result
}
