package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Limits applied when reading configuration from disk or the environment.
// Config files for this system are small JSON documents; anything near
// these limits is malformed or hostile.
const (
	maxConfigBytes  = 1 << 20 // config files stay well under 1MB
	maxNestingDepth = 50
	maxEnvValueLen  = 8192
	maxPathLen      = 4096
)

// validateConfigPath rejects paths that escape the working directory or do
// not name a JSON file.
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("config path exceeds %d characters", maxPathLen)
	}
	if !strings.HasSuffix(path, ".json") {
		return fmt.Errorf("config must be a .json file: %s", path)
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	if filepath.IsAbs(path) {
		if strings.Contains(filepath.ToSlash(abs), "..") {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
		return nil
	}

	// Relative paths must stay under the working directory once resolved.
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	rel, err := filepath.Rel(cwd, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("config path %s resolves outside working directory", path)
	}
	return nil
}

// safeReadFile reads a validated config path, refusing oversized files and
// anything that is not a regular file.
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (limit %d)", info.Size(), maxConfigBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return data, nil
}

// safeWriteFile writes config data to a validated path with owner-only
// permissions. Used when generating a starter config file.
func safeWriteFile(path string, data []byte) error {
	if err := validateConfigPath(path); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	if len(data) > maxConfigBytes {
		return fmt.Errorf("config data too large: %d bytes (limit %d)", len(data), maxConfigBytes)
	}
	return os.WriteFile(path, data, 0600)
}

// validateEnvVar caps override values and rejects embedded null bytes.
// Empty values are allowed; the caller skips them.
func validateEnvVar(key, value string) error {
	if len(value) > maxEnvValueLen {
		return fmt.Errorf("environment variable %s exceeds %d characters", key, maxEnvValueLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// validateJSONDepth walks raw JSON and rejects pathological nesting before
// it reaches the decoder. Brackets inside string literals are skipped.
func validateJSONDepth(data []byte) error {
	depth := 0
	inString := false

	for i := 0; i < len(data); i++ {
		if inString {
			switch data[i] {
			case '\\':
				i++ // skip the escaped byte
			case '"':
				inString = false
			}
			continue
		}

		switch data[i] {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > maxNestingDepth {
				return fmt.Errorf("JSON nesting exceeds %d levels", maxNestingDepth)
			}
		case '}', ']':
			depth--
			if depth < 0 {
				return errors.New("malformed JSON: unbalanced brackets")
			}
		}
	}

	if depth != 0 {
		return errors.New("malformed JSON: unclosed brackets")
	}
	return nil
}
