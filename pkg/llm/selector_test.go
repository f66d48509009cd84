package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/models"
)

func TestModelSelector_Defaults(t *testing.T) {
	s, err := NewModelSelector("")
	require.NoError(t, err)

	free := s.Models(models.TierFree, EndpointChat, false)
	assert.NotEmpty(t, free)

	pro := s.Models(models.TierPro, EndpointChat, false)
	assert.NotEmpty(t, pro)
	assert.NotEqual(t, free, pro)
}

func TestModelSelector_ReasoningListPreferred(t *testing.T) {
	s, err := NewModelSelector("")
	require.NoError(t, err)

	plain := s.Models(models.TierPro, EndpointChat, false)
	reasoning := s.Models(models.TierPro, EndpointChat, true)
	assert.NotEqual(t, plain, reasoning)
}

func TestModelSelector_FallsBackToFreeCell(t *testing.T) {
	s, err := NewModelSelector("")
	require.NoError(t, err)

	// Basic has no ultra_think cell and neither does free.
	assert.Empty(t, s.Models(models.TierBasic, EndpointUltraThink, false))

	// An unknown tier falls back to the free table.
	got := s.Models(models.Tier("enterprise"), EndpointChat, false)
	assert.Equal(t, s.Models(models.TierFree, EndpointChat, false), got)
}

func TestModelSelector_SelectSaturates(t *testing.T) {
	s, err := NewModelSelector("")
	require.NoError(t, err)

	list := s.Models(models.TierFree, EndpointChat, false)
	require.NotEmpty(t, list)

	first, err := s.Select(models.TierFree, EndpointChat, false, 0)
	require.NoError(t, err)
	assert.Equal(t, list[0], first)

	last, err := s.Select(models.TierFree, EndpointChat, false, 99)
	require.NoError(t, err)
	assert.Equal(t, list[len(list)-1], last)

	clamped, err := s.Select(models.TierFree, EndpointChat, false, -5)
	require.NoError(t, err)
	assert.Equal(t, list[0], clamped)
}

func TestModelSelector_FileOverridesAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"free": {"chat": {"models": ["test/model-a", "test/model-b"]}}
	}`), 0o600))

	s, err := NewModelSelector(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"test/model-a", "test/model-b"},
		s.Models(models.TierFree, EndpointChat, false))

	// Cells absent from the file keep their compiled defaults.
	assert.NotEmpty(t, s.Models(models.TierPro, EndpointDeepDive, false))

	require.NoError(t, os.WriteFile(path, []byte(`{
		"free": {"chat": {"models": ["test/model-c"]}}
	}`), 0o600))
	require.NoError(t, s.Reload())
	assert.Equal(t, []string{"test/model-c"},
		s.Models(models.TierFree, EndpointChat, false))
}

func TestModelSelector_RejectsUnknownTier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"platinum": {"chat": {"models": ["x"]}}
	}`), 0o600))

	_, err := NewModelSelector(path)
	assert.ErrorContains(t, err, "unknown tier")
}

func TestModelSelector_MissingFileUsesDefaults(t *testing.T) {
	s, err := NewModelSelector(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, s.Models(models.TierFree, EndpointChat, false))
}
