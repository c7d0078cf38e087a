package entity

// ToolContract is the canonical, LLM-facing declaration of a tool: its
// name, the aliases that resolve to it (e.g. legacy "read_file" ->
// "fs.read_text"), its JSON argument schema, and the capability it maps
// to for provider routing and policy enforcement.
type ToolContract struct {
	canonicalName string
	aliases       map[string]bool
	description   string
	argSchema     []byte // JSON schema, generated via invopop/jsonschema
	capability    string
	mutating      bool
}

// NewToolContract creates a tool contract with no aliases.
func NewToolContract(canonicalName, description string, argSchema []byte, capability string, mutating bool) (*ToolContract, error) {
	if canonicalName == "" {
		return nil, ErrInvalidToolName
	}
	return &ToolContract{
		canonicalName: canonicalName,
		aliases:       make(map[string]bool),
		description:   description,
		argSchema:     argSchema,
		capability:    capability,
		mutating:      mutating,
	}, nil
}

// ReconstructToolContract rebuilds a tool contract from persisted/config state.
func ReconstructToolContract(canonicalName, description string, argSchema []byte, capability string, mutating bool, aliases []string) *ToolContract {
	tc := &ToolContract{
		canonicalName: canonicalName,
		aliases:       make(map[string]bool, len(aliases)),
		description:   description,
		argSchema:     argSchema,
		capability:    capability,
		mutating:      mutating,
	}
	for _, a := range aliases {
		tc.aliases[a] = true
	}
	return tc
}

func (t *ToolContract) CanonicalName() string { return t.canonicalName }
func (t *ToolContract) Description() string   { return t.description }
func (t *ToolContract) ArgSchema() []byte     { return t.argSchema }
func (t *ToolContract) Capability() string    { return t.capability }
func (t *ToolContract) Mutating() bool        { return t.mutating }

// Aliases returns the set of alias names that resolve to this contract.
func (t *ToolContract) Aliases() []string {
	out := make([]string, 0, len(t.aliases))
	for a := range t.aliases {
		out = append(out, a)
	}
	return out
}

// AddAlias registers a new alias. Callers (the Tool Contract Registry)
// must check for cross-contract collisions before calling this — a
// contract does not know about its siblings.
func (t *ToolContract) AddAlias(alias string) {
	if t.aliases == nil {
		t.aliases = make(map[string]bool)
	}
	t.aliases[alias] = true
}

// Resolves reports whether name is this contract's canonical name or a
// registered alias.
func (t *ToolContract) Resolves(name string) bool {
	return name == t.canonicalName || t.aliases[name]
}
