package types

import (
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Settings is the single persisted configuration blob. The maps mirror the
// on-disk JSON layout exactly; missing maps mean "no entries", never an error.
type Settings struct {
	// Blacklist maps room id -> set of banned user ids or explicit /pattern/i
	// entries. The value is always 1, the map is used as a set.
	Blacklist map[string]map[string]int `json:"blacklist,omitempty"`

	// Modding maps room id -> rule name -> enabled. The inner map is kept
	// loosely typed because the blob is hand-edited in the wild; anything
	// that does not decode as a rule->bool map falls back to the default
	// rule set.
	Modding map[string]interface{} `json:"modding,omitempty"`

	// BannedPhrases maps room id (or "global") -> set of phrases.
	BannedPhrases map[string]map[string]int `json:"bannedPhrases,omitempty"`

	// PunishmentLadder maps the rung (as a decimal string, JSON keys are
	// strings) to the protocol action name.
	PunishmentLadder map[string]string `json:"punishmentLadder,omitempty"`
}

// defaultLadder is used for any rung the persisted ladder does not bind.
var defaultLadder = map[int]string{
	1: "warn",
	2: "mute",
	3: "hourmute",
	4: "roomban",
}

// Action resolves a punishment rung to an action name, falling back to the
// default ladder and finally to "mute" for out-of-range rungs.
func (s *Settings) Action(rung int) string {
	if s != nil && s.PunishmentLadder != nil {
		if a, ok := s.PunishmentLadder[strconv.Itoa(rung)]; ok && a != "" {
			return a
		}
	}
	if a, ok := defaultLadder[rung]; ok {
		return a
	}
	return "mute"
}

// RuleEnabled reports whether a moderation rule is active in a room. Absent
// or malformed override configuration falls back to enabled.
func (s *Settings) RuleEnabled(roomId, rule string) bool {
	if s == nil || s.Modding == nil {
		return true
	}
	raw, ok := s.Modding[roomId]
	if !ok || raw == nil {
		return true
	}
	var overrides map[string]bool
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &overrides,
	})
	if err != nil || dec.Decode(raw) != nil {
		return true
	}
	if v, ok := overrides[rule]; ok {
		return v
	}
	return true
}

// SetRule stores a per-room rule override.
func (s *Settings) SetRule(roomId, rule string, enabled bool) {
	if s.Modding == nil {
		s.Modding = make(map[string]interface{})
	}
	overrides, _ := s.Modding[roomId].(map[string]interface{})
	if overrides == nil {
		overrides = make(map[string]interface{})
		s.Modding[roomId] = overrides
	}
	overrides[rule] = enabled
}

// PhrasesFor returns the banned phrases applying to a room: the room's own
// list plus the global one.
func (s *Settings) PhrasesFor(roomId string) []string {
	if s == nil || s.BannedPhrases == nil {
		return nil
	}
	phrases := make([]string, 0, len(s.BannedPhrases[roomId])+len(s.BannedPhrases["global"]))
	for p := range s.BannedPhrases[roomId] {
		phrases = append(phrases, p)
	}
	for p := range s.BannedPhrases["global"] {
		phrases = append(phrases, p)
	}
	return phrases
}
