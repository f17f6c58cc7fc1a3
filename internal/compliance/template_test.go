package compliance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/handoff-engine/internal/model"
)

func TestDefaultIsValid(t *testing.T) {
	tpl := Default()
	require.NoError(t, Validate(tpl))
	assert.Equal(t, DefaultVersion, tpl.Version)
	assert.False(t, tpl.AllowLinks)
	assert.False(t, tpl.AllowPrice)
	assert.Contains(t, tpl.MandatoryStopTriggers, "amém")
	assert.Contains(t, tpl.BotSuspicionTriggers, "bot")
}

func TestDefaultReturnsFreshCopies(t *testing.T) {
	a := Default()
	a.GlobalForbiddenTerms[0] = "changed"
	b := Default()
	assert.NotEqual(t, "changed", b.GlobalForbiddenTerms[0])
}

func TestBuildNicheExclusions(t *testing.T) {
	excl := BuildNicheExclusions(nicheVocabulary)

	assert.Contains(t, excl[model.NicheReligious], "eleição")
	assert.Contains(t, excl[model.NicheReligious], "dieta")
	assert.NotContains(t, excl[model.NicheReligious], "igreja")

	assert.Contains(t, excl[model.NichePolitical], "igreja")
	assert.NotContains(t, excl[model.NichePolitical], "voto")

	assert.Contains(t, excl[model.NicheGeneral], "voto")
	assert.NotContains(t, excl[model.NicheGeneral], "igreja")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.yaml")
	doc := `
version: "2025.1"
max_consecutive_auto_messages: 2
allow_links: false
allow_price: true
global_forbidden_terms: [golpe]
mandatory_stop_triggers: [tchau]
mandatory_escalation_triggers:
  DISTRESS: [socorro]
bot_suspicion_triggers: [bot]
niche_exclusions:
  wellness: [voto]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	tpl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2025.1", tpl.Version)
	assert.Equal(t, 2, tpl.MaxConsecutiveAutoMessages)
	assert.True(t, tpl.AllowPrice)
	assert.Equal(t, []string{"socorro"}, tpl.MandatoryEscalationTriggers[model.EscalationDistress])
	assert.Equal(t, []string{"voto"}, tpl.NicheExclusions[model.NicheWellness])
}

func TestLoadRejectsInvalidTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"\"\nniche_exclusions:\n  astrology: [x]\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template version is required")
	assert.Contains(t, err.Error(), "unknown niche")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
