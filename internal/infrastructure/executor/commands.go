// Package executor implements the Local Executor (spec.md §4.10):
// root-confined file read/write/patch and a canonical-command-whitelist
// shell runner, the tool set the Executor Bridge (spec.md §4.9) exposes
// over the wire.
//
// Grounded on the teacher's internal/infrastructure/sandbox.ProcessSandbox
// (process-group isolation, AllowedBins whitelist, captured
// stdout/stderr, timeout-as-kill) generalized from a flat binary-name
// whitelist to spec.md §4.10's richer canonical-command registry
// ({executable, static args, max user args, risk, allow-in-strict}).
package executor

// RiskLevel classifies a canonical command for policy/approval surfaces.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// CommandSpec is one entry in the canonical command registry: a stable
// identifier a tool call references by `commandId`, bound to a real
// executable and a cap on how many caller-supplied argv entries are
// accepted. Tagged for yaml so an operator can describe the whitelist as
// a file (see registry_file.go) instead of only the Go literal below.
type CommandSpec struct {
	ID            string    `yaml:"id"`
	Executable    string    `yaml:"executable"`
	StaticArgs    []string  `yaml:"static_args,omitempty"`
	MaxUserArgs   int       `yaml:"max_user_args"`
	Risk          RiskLevel `yaml:"risk"`
	AllowInStrict bool      `yaml:"allow_in_strict"`
}

// CommandRegistry resolves canonical command ids to specs.
type CommandRegistry struct {
	commands map[string]CommandSpec
}

// NewCommandRegistry builds a registry from specs, keyed by ID.
func NewCommandRegistry(specs []CommandSpec) *CommandRegistry {
	r := &CommandRegistry{commands: make(map[string]CommandSpec, len(specs))}
	for _, s := range specs {
		r.commands[s.ID] = s
	}
	return r
}

// Resolve looks up a canonical command id.
func (r *CommandRegistry) Resolve(commandID string) (CommandSpec, bool) {
	spec, ok := r.commands[commandID]
	return spec, ok
}

// DefaultCommandRegistry mirrors the teacher's DefaultConfig().AllowedBins
// set, narrowed to the handful of canonical commands spec.md §4.10
// names explicitly (`bash`) plus the everyday read-only tools the
// teacher's allowlist already vouches for — each bound to one fixed
// executable instead of the teacher's bare binary-name check.
func DefaultCommandRegistry() *CommandRegistry {
	return NewCommandRegistry([]CommandSpec{
		{ID: "bash", Executable: "bash", StaticArgs: []string{"-c"}, MaxUserArgs: 1, Risk: RiskHigh, AllowInStrict: false},
		{ID: "git", Executable: "git", MaxUserArgs: 16, Risk: RiskModerate, AllowInStrict: true},
		{ID: "grep", Executable: "grep", MaxUserArgs: 16, Risk: RiskLow, AllowInStrict: true},
		{ID: "find", Executable: "find", MaxUserArgs: 16, Risk: RiskLow, AllowInStrict: true},
		{ID: "ls", Executable: "ls", MaxUserArgs: 8, Risk: RiskLow, AllowInStrict: true},
	})
}
