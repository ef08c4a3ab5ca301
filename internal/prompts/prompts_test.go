package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPromptsComplete(t *testing.T) {
	p := Default()
	assert.NotEmpty(t, p.Orchestrator)
	assert.NotEmpty(t, p.Classifier)
	assert.NotEmpty(t, p.MapBuilder)
	assert.NotEmpty(t, p.Reasoning)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestLoadOverridesOnlyNonEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classifier: custom classifier prompt\n"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom classifier prompt", p.Classifier)
	assert.Equal(t, Default().MapBuilder, p.MapBuilder, "unset entries keep defaults")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{not yaml"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)
}
