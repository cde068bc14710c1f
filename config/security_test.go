package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "empty", path: "", wantErr: "empty config path"},
		{name: "wrong extension", path: "config.yaml", wantErr: ".json file"},
		{name: "relative escape", path: "../../../etc/passwd.json", wantErr: "outside working directory"},
		{name: "too long", path: strings.Repeat("a", maxPathLen+1) + ".json", wantErr: "exceeds"},
		{name: "plain relative", path: "configs/scentstream.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSafeReadFile_RejectsOversized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	data := append([]byte(`{"pad":"`), make([]byte, maxConfigBytes)...)
	data = append(data, []byte(`"}`)...)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err := safeReadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestSafeWriteFile_OwnerOnlyPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, safeWriteFile(path, []byte(`{}`)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestValidateEnvVar(t *testing.T) {
	assert.NoError(t, validateEnvVar("SCENTSTREAM_PLATFORM_ORG", "acme"))
	assert.NoError(t, validateEnvVar("SCENTSTREAM_NATS_URLS", ""))

	err := validateEnvVar("SCENTSTREAM_NATS_TOKEN", strings.Repeat("x", maxEnvValueLen+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	err = validateEnvVar("SCENTSTREAM_NATS_TOKEN", "abc\x00def")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null byte")
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a":{"b":[1,2,{"c":3}]}}`)))

	// Brackets inside strings do not count toward nesting
	assert.NoError(t, validateJSONDepth([]byte(`{"a":"{{{{[[[["}`)))

	deep := strings.Repeat("[", maxNestingDepth+1) + strings.Repeat("]", maxNestingDepth+1)
	err := validateJSONDepth([]byte(deep))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting")

	err = validateJSONDepth([]byte(`{"a":1}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbalanced")

	err = validateJSONDepth([]byte(`{"a":{`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclosed")
}
