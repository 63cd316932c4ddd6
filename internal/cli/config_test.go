package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = "../config/testdata/gasoline.yaml"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfigValidate_Valid(t *testing.T) {
	stdout, _, err := execute(t, "config", "validate", validConfig)
	require.NoError(t, err)
	assert.Equal(t, "✓ "+validConfig+" is valid\n", stdout)
}

func TestConfigValidate_ValidJSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "config", "validate", validConfig)
	require.NoError(t, err)

	var resp struct {
		Status string                 `json:"status"`
		Data   ConfigValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Empty(t, resp.Data.Errors)
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := writeFile(t, "bad.yaml", "store:\n  max_steps: -1\n")

	stdout, _, err := execute(t, "config", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ "+path+" is invalid")
	assert.Contains(t, stdout, "E101: ")
	assert.Contains(t, stdout, "max_steps")
}

func TestConfigValidate_InvalidJSON(t *testing.T) {
	path := writeFile(t, "bad.yaml", "metrics:\n  namespace: 9lives\n")

	stdout, _, err := execute(t, "--format", "json", "config", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string                 `json:"status"`
		Data   ConfigValidationResult `json:"data"`
		Error  CLIError               `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalidConfig, resp.Error.Code)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Contains(t, resp.Data.Errors[0].Field, "namespace")
}

func TestConfigValidate_UnknownKey(t *testing.T) {
	path := writeFile(t, "typo.yaml", "store:\n  max_stepz: 3\n")

	stdout, _, err := execute(t, "config", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "max_stepz")
}

func TestConfigValidate_MissingFile(t *testing.T) {
	_, _, err := execute(t, "config", "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
