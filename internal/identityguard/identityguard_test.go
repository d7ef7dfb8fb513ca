package identityguard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrip_RemovesForbiddenFieldsOnly(t *testing.T) {
	out, result := Strip(context.Background(), nil, "t", map[string]any{
		"message":     "hi",
		"impersonate": "admin",
		"user_id":     "u1",
	}, true)

	assert.Equal(t, map[string]any{"message": "hi", "user_id": "u1"}, out)
	assert.Equal(t, []string{"impersonate"}, result.StrippedFields)
	assert.Equal(t, 3, result.OriginalFieldCount)
	assert.True(t, result.Sanitized)
}

func TestStrip_Idempotent(t *testing.T) {
	payload := map[string]any{"impersonate_as": "root", "spoof": "x", "safe": "keep"}
	once, _ := Strip(context.Background(), nil, "t", payload, true)
	_, second := Strip(context.Background(), nil, "t", once, true)
	assert.Empty(t, second.StrippedFields)
}

func TestStrip_MonitoredFieldsSurviveAndAreFlagged(t *testing.T) {
	out, _ := Strip(context.Background(), nil, "t", map[string]any{"agent_id": "a1", "msg": "hi"}, true)
	assert.Equal(t, "a1", out["agent_id"])
}

func TestContainsForbidden(t *testing.T) {
	has, fields := ContainsForbidden(map[string]any{"post_as": "x", "ok": 1})
	assert.True(t, has)
	assert.Equal(t, []string{"post_as"}, fields)

	has, fields = ContainsForbidden(map[string]any{"ok": 1})
	assert.False(t, has)
	assert.Empty(t, fields)
}

func TestDeepStrip_RemovesAtEveryDepth(t *testing.T) {
	in := map[string]any{
		"impersonate": "root",
		"nested": map[string]any{
			"spoof_as": "y",
			"keep":     "z",
		},
		"list": []any{
			map[string]any{"send_as": "bob", "fine": 1},
		},
	}
	out := DeepStrip(in, 10).(map[string]any)

	_, topHas := out["impersonate"]
	assert.False(t, topHas)

	nested := out["nested"].(map[string]any)
	_, nestedHas := nested["spoof_as"]
	assert.False(t, nestedHas)
	assert.Equal(t, "z", nested["keep"])

	list := out["list"].([]any)
	item := list[0].(map[string]any)
	_, itemHas := item["send_as"]
	assert.False(t, itemHas)
	assert.Equal(t, 1, item["fine"])
}

func TestDeepStrip_DepthBoundStopsDescending(t *testing.T) {
	in := map[string]any{
		"a": map[string]any{
			"impersonate": "root",
		},
	}
	out := DeepStrip(in, 1).(map[string]any)
	a := out["a"].(map[string]any)
	_, has := a["impersonate"]
	assert.True(t, has, "depth bound of 1 should stop before descending into \"a\"")
}

func TestValidateSource_SessionWins(t *testing.T) {
	r := ValidateSource("session-user", "other-user", "bot-x")
	assert.True(t, r.Valid)
	assert.Equal(t, "session-user", r.ResolvedIdentity)
	assert.Equal(t, SourceSession, r.Source)
	assert.True(t, r.Mismatch)
}

func TestValidateSource_SessionNoMismatch(t *testing.T) {
	r := ValidateSource("u1", "u1", "")
	assert.True(t, r.Valid)
	assert.False(t, r.Mismatch)
}

func TestValidateSource_FallsBackToBot(t *testing.T) {
	r := ValidateSource("", "", "bot-x")
	assert.True(t, r.Valid)
	assert.Equal(t, "bot-x", r.ResolvedIdentity)
	assert.Equal(t, SourceBot, r.Source)
}

func TestValidateSource_UntrustedRequestIdentityRejected(t *testing.T) {
	r := ValidateSource("", "someone", "")
	assert.False(t, r.Valid)
	assert.Equal(t, SourceNone, r.Source)
}

func TestValidateSource_NothingPresent(t *testing.T) {
	r := ValidateSource("", "", "")
	assert.False(t, r.Valid)
	assert.Equal(t, SourceNone, r.Source)
}
