package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openlact/lactd/api"
)

func TestEvaluate_BasicProfileSwitch(t *testing.T) {
	state := NewState()
	state.Upsert(1, ProcessInfo{Name: "game1"})

	profiles := map[string]api.Profile{
		"1": {Rule: ptrRule(api.NewProcessRule("game1", nil))},
		"2": {Rule: ptrRule(api.NewProcessRule("game2", nil))},
	}
	order := []string{"1", "2"}

	assert.Equal(t, "1", Evaluate(state, order, profiles))

	state.Remove(1)
	state.Upsert(1, ProcessInfo{Name: "game2"})
	assert.Equal(t, "2", Evaluate(state, order, profiles))

	state.Remove(1)
	state.Upsert(1, ProcessInfo{Name: "game3"})
	assert.Equal(t, "", Evaluate(state, order, profiles))
}

func TestMatches_ProcessWithArgsSubstring(t *testing.T) {
	state := NewState()
	state.Upsert(5, ProcessInfo{Name: "steam", Cmdline: "steam -applaunch 730"})

	args := "applaunch 730"
	rule := api.NewProcessRule("steam", &args)
	assert.True(t, Matches(state, rule))

	otherArgs := "applaunch 440"
	rule2 := api.NewProcessRule("steam", &otherArgs)
	assert.False(t, Matches(state, rule2))
}

func TestMatches_GamemodeBare(t *testing.T) {
	state := NewState()
	assert.False(t, Matches(state, api.NewGamemodeRule(nil)))

	state.SetGamemode(7, true)
	assert.True(t, Matches(state, api.NewGamemodeRule(nil)))

	state.SetGamemode(7, false)
	assert.False(t, Matches(state, api.NewGamemodeRule(nil)))
}

func TestMatches_GamemodeWithInnerProcessFilter(t *testing.T) {
	state := NewState()
	state.Upsert(9, ProcessInfo{Name: "elden-ring"})
	state.SetGamemode(9, true)

	inner := api.NewProcessRule("elden-ring", nil)
	assert.True(t, Matches(state, api.NewGamemodeRule(&inner)))

	wrongInner := api.NewProcessRule("dota2", nil)
	assert.False(t, Matches(state, api.NewGamemodeRule(&wrongInner)))
}

func TestMatches_AndRequiresAllSubrules(t *testing.T) {
	state := NewState()
	state.Upsert(1, ProcessInfo{Name: "game1"})
	state.SetGamemode(1, true)

	rule := api.NewAndRule(api.NewProcessRule("game1", nil), api.NewGamemodeRule(nil))
	assert.True(t, Matches(state, rule))

	state.SetGamemode(1, false)
	assert.False(t, Matches(state, rule))
}

func TestMatches_AndWithNoSubrulesIsFalse(t *testing.T) {
	state := NewState()
	assert.False(t, Matches(state, api.NewAndRule()))
}

func TestMatches_OrRequiresAnySubrule(t *testing.T) {
	state := NewState()
	state.Upsert(1, ProcessInfo{Name: "game2"})

	rule := api.NewOrRule(api.NewProcessRule("game1", nil), api.NewProcessRule("game2", nil))
	assert.True(t, Matches(state, rule))

	state.Remove(1)
	assert.False(t, Matches(state, rule))
}

func TestMatches_OrWithNoSubrulesIsFalse(t *testing.T) {
	state := NewState()
	assert.False(t, Matches(state, api.NewOrRule()))
}

func ptrRule(r api.ProfileRule) *api.ProfileRule { return &r }
