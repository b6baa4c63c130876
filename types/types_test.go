package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToId(t *testing.T) {
	assert.Equal(t, "someuser", ToId("+Some User!"))
	assert.Equal(t, "someuser", ToId("someuser"))
	assert.Equal(t, "abc123", ToId(" ABC-123 "))
	assert.Equal(t, "", ToId("!!!"))
	assert.Equal(t, "", ToId(""))
}

func TestTagOf(t *testing.T) {
	assert.Equal(t, TagChallenge, TagOf("challstr"))
	assert.Equal(t, TagChat, TagOf("c"))
	assert.Equal(t, TagChatTimestamped, TagOf("c:"))
	assert.Equal(t, TagJoin, TagOf("J"))
	assert.Equal(t, TagJoin, TagOf("j"))
	assert.Equal(t, TagLeave, TagOf("l"))
	assert.Equal(t, TagRename, TagOf("N"))
	assert.Equal(t, TagUnknown, TagOf("n"), "the rename tag is case-sensitive")
	assert.Equal(t, TagUnknown, TagOf("html"))
}

func TestActionLadder(t *testing.T) {
	var s *Settings
	assert.Equal(t, "warn", s.Action(1), "nil settings use the default ladder")

	s = &Settings{}
	assert.Equal(t, "warn", s.Action(1))
	assert.Equal(t, "mute", s.Action(2))
	assert.Equal(t, "hourmute", s.Action(3))
	assert.Equal(t, "roomban", s.Action(4))
	assert.Equal(t, "mute", s.Action(99), "out-of-range rungs fall back to mute")

	s.PunishmentLadder = map[string]string{"4": "ban"}
	assert.Equal(t, "ban", s.Action(4))
	assert.Equal(t, "warn", s.Action(1), "unbound rungs keep the default")
}

func TestRuleEnabled(t *testing.T) {
	var s *Settings
	assert.True(t, s.RuleEnabled("test", "caps"), "nil settings enable everything")

	s = &Settings{}
	assert.True(t, s.RuleEnabled("test", "caps"))

	s.SetRule("test", "caps", false)
	assert.False(t, s.RuleEnabled("test", "caps"))
	assert.True(t, s.RuleEnabled("test", "flooding"), "other rules stay enabled")
	assert.True(t, s.RuleEnabled("other", "caps"), "overrides are room-scoped")

	s.SetRule("test", "caps", true)
	assert.True(t, s.RuleEnabled("test", "caps"))
}

func TestRuleEnabledToleratesHandEditedBlobs(t *testing.T) {
	// the persisted blob is hand-edited in the wild; junk falls back to enabled
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"modding":{"test":"everything","dev":{"caps":0,"flooding":"true"}}}`), &s))
	assert.True(t, s.RuleEnabled("test", "caps"), "a non-map override is ignored")
	assert.False(t, s.RuleEnabled("dev", "caps"), "numeric 0 decodes as false")
	assert.True(t, s.RuleEnabled("dev", "flooding"), "string true decodes as true")
}

func TestPhrasesFor(t *testing.T) {
	var s *Settings
	assert.Empty(t, s.PhrasesFor("test"))

	s = &Settings{BannedPhrases: map[string]map[string]int{
		"global": {"buy now": 1},
		"test":   {"spoilers": 1},
	}}
	phrases := s.PhrasesFor("test")
	assert.ElementsMatch(t, []string{"buy now", "spoilers"}, phrases)
	assert.ElementsMatch(t, []string{"buy now"}, s.PhrasesFor("other"))
}

func TestSettingsJSONShape(t *testing.T) {
	// the on-disk layout is shared with other tooling and must stay stable
	s := &Settings{
		Blacklist:        map[string]map[string]int{"test": {"troll": 1}},
		BannedPhrases:    map[string]map[string]int{"global": {"x": 1}},
		PunishmentLadder: map[string]string{"1": "warn"},
	}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"blacklist":{"test":{"troll":1}},"bannedPhrases":{"global":{"x":1}},"punishmentLadder":{"1":"warn"}}`,
		string(data))
}
