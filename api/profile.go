package api

// Profile is a named alternative GpuConfig mapping, optionally gated by
// a ProfileRule (spec.md §3). When CurrentProfile is empty, the
// top-level Config.Gpus mapping is active instead.
type Profile struct {
	Gpus map[DeviceID]GpuConfig `json:"gpus"`
	Rule *ProfileRule           `json:"rule,omitempty"`
}

// ProfileRuleKind tags which variant of ProfileRule is populated.
type ProfileRuleKind string

const (
	RuleProcess  ProfileRuleKind = "process"
	RuleGamemode ProfileRuleKind = "gamemode"
	RuleAnd      ProfileRuleKind = "and"
	RuleOr       ProfileRuleKind = "or"
)

// ProfileRule is the tagged sum from spec.md §3:
//
//	Process{name, args?} | Gamemode{inner_process_rule?} | And[rules] | Or[rules]
//
// Exactly one of the kind-specific fields is meaningful, selected by
// Kind; this mirrors a Rust enum more directly than a Go interface
// would while still round-tripping cleanly through JSON/YAML.
type ProfileRule struct {
	Kind ProfileRuleKind `json:"kind"`

	// Process fields, valid when Kind == RuleProcess.
	ProcessName string  `json:"process_name,omitempty"`
	ProcessArgs *string `json:"process_args,omitempty"`

	// Gamemode fields, valid when Kind == RuleGamemode. InnerProcess is
	// optional: Gamemode(None) in the spec's ADT notation.
	InnerProcess *ProfileRule `json:"inner_process_rule,omitempty"`

	// And/Or fields, valid when Kind == RuleAnd or RuleOr.
	Rules []ProfileRule `json:"rules,omitempty"`
}

// NewProcessRule builds a Process{name,args} rule.
func NewProcessRule(name string, args *string) ProfileRule {
	return ProfileRule{Kind: RuleProcess, ProcessName: name, ProcessArgs: args}
}

// NewGamemodeRule builds a Gamemode(inner) rule; inner may be nil.
func NewGamemodeRule(inner *ProfileRule) ProfileRule {
	return ProfileRule{Kind: RuleGamemode, InnerProcess: inner}
}

// NewAndRule builds an And[rules] rule.
func NewAndRule(rules ...ProfileRule) ProfileRule {
	return ProfileRule{Kind: RuleAnd, Rules: rules}
}

// NewOrRule builds an Or[rules] rule.
func NewOrRule(rules ...ProfileRule) ProfileRule {
	return ProfileRule{Kind: RuleOr, Rules: rules}
}
