package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReturnsConfiguredPersona(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	body := "personas:\n  bot1:\n    name: Aria\n    traits: [curious, warm]\n    speaking_style: playful\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)

	p := cat.Get("bot1")
	assert.Equal(t, "Aria", p.Name)
	assert.Equal(t, []string{"curious", "warm"}, p.Traits)
	assert.Equal(t, "playful", p.SpeakingStyle)
}

func TestGetFallsBackToDefaultPersona(t *testing.T) {
	cat, err := Load(writeEmptyCatalogue(t))
	require.NoError(t, err)

	p := cat.Get("unknown-bot")
	assert.Equal(t, DefaultPersona().Name, p.Name)
}

func writeEmptyCatalogue(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personas: {}\n"), 0o644))
	return path
}
