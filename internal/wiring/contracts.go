package wiring

import (
	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/toolcontract"
)

// Argument shapes for the canonical tool set (spec.md §6). Field names
// match the wire argument keys the Runtime Loop's tool dispatch expects
// in a call's Arguments map.

type readTextArgs struct {
	Path string `json:"path" jsonschema:"required,description=Root-confined file path to read"`
}

type writeTextArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Root-confined file path to write"`
	Content string `json:"content" jsonschema:"required,description=Full content to write"`
	Mode    string `json:"mode,omitempty" jsonschema:"description=overwrite (default) | append | create,enum=overwrite|append|create"`
}

type patchTextArgs struct {
	Path  string `json:"path" jsonschema:"required,description=Root-confined file path to patch"`
	Patch string `json:"patch" jsonschema:"required,description=Unified diff body"`
}

type commandRunArgs struct {
	CommandID string   `json:"commandId" jsonschema:"required,description=Canonical command id from the registry (e.g. bash, git, grep)"`
	Argv      []string `json:"argv,omitempty" jsonschema:"description=User-supplied argv entries, capped by the command's MaxUserArgs"`
}

type browserSnapshotArgs struct {
	TabID string `json:"tab_id" jsonschema:"required,description=Target browser tab identifier"`
}

type browserActionArgs struct {
	TabID                 string `json:"tab_id" jsonschema:"required,description=Target browser tab identifier"`
	OwnerID               string `json:"owner_id" jsonschema:"required,description=Lease owner id returned by browser.lease"`
	Ref                    string `json:"ref,omitempty" jsonschema:"description=Snapshot ref to act on; unused for navigate"`
	Value                  string `json:"value,omitempty" jsonschema:"description=fill/type payload"`
	URL                    string `json:"url,omitempty" jsonschema:"description=navigate target"`
	PredicateKind          string `json:"predicate_kind,omitempty" jsonschema:"description=Optional post-action verify predicate,enum=textIncludes|selectorExists|urlChanged|attributeEquals"`
	PredicateText          string `json:"predicate_text,omitempty"`
	PredicateSelector      string `json:"predicate_selector,omitempty"`
	PredicateAttr          string `json:"predicate_attr,omitempty"`
	PredicateWant          string `json:"predicate_want,omitempty"`
	PredicatePreviousURL   string `json:"predicate_previous_url,omitempty"`
}

type browserLeaseArgs struct {
	TabID     string `json:"tab_id" jsonschema:"required,description=Target browser tab identifier"`
	OwnerID   string `json:"owner_id" jsonschema:"required,description=Identifier to bind this lease to"`
	SessionID string `json:"session_id,omitempty" jsonschema:"description=Owning session id, for lease introspection"`
	TTLMs     int    `json:"ttl_ms,omitempty" jsonschema:"description=Lease lifetime in milliseconds; defaults to 30000"`
}

type browserVerifyArgs struct {
	TabID       string `json:"tab_id" jsonschema:"required,description=Target browser tab identifier"`
	Kind        string `json:"kind" jsonschema:"required,enum=textIncludes|selectorExists|urlChanged|attributeEquals"`
	Text        string `json:"text,omitempty"`
	Selector    string `json:"selector,omitempty"`
	Attr        string `json:"attr,omitempty"`
	Want        string `json:"want,omitempty"`
	PreviousURL string `json:"previous_url,omitempty"`
	TimeoutMs   int    `json:"timeout_ms,omitempty"`
	IntervalMs  int    `json:"interval_ms,omitempty"`
}

// registerContracts builds the Tool Contract Registry spec.md §6 names:
// the four Local Executor tools (with their legacy aliases) plus the
// Execution Engine's snapshot/action/lease/verify surface.
func registerContracts(contracts *toolcontract.Registry) error {
	type def struct {
		name, alias, capability, description string
		mutating                              bool
		schema                                []byte
	}
	defs := []def{
		{"fs.read_text", "read_file", "fs.read_text", "Read a root-confined text file.", false, schemaFor(readTextArgs{})},
		{"fs.write_text", "write_file", "fs.write_text", "Write (overwrite/append/create) a root-confined text file.", true, schemaFor(writeTextArgs{})},
		{"fs.patch_text", "edit_file", "fs.patch_text", "Apply a unified diff to a root-confined text file.", true, schemaFor(patchTextArgs{})},
		{"command.run", "bash", "command.run", "Run a whitelisted canonical command.", true, schemaFor(commandRunArgs{})},
		{"browser.snapshot", "", "browser.snapshot", "Capture an accessibility-tree-first snapshot of a tab.", false, schemaFor(browserSnapshotArgs{})},
		{"browser.click", "", "browser.click", "Click a snapshot ref.", true, schemaFor(browserActionArgs{})},
		{"browser.fill", "", "browser.fill", "Fill a snapshot ref's value.", true, schemaFor(browserActionArgs{})},
		{"browser.navigate", "", "browser.navigate", "Navigate a tab to a URL.", true, schemaFor(browserActionArgs{})},
		{"browser.hover", "", "browser.hover", "Hover a snapshot ref.", true, schemaFor(browserActionArgs{})},
		{"browser.type", "", "browser.type", "Type text into a snapshot ref.", true, schemaFor(browserActionArgs{})},
		{"browser.lease", "", "browser.lease", "Acquire a write lease on a tab.", false, schemaFor(browserLeaseArgs{})},
		{"browser.verify", "", "browser.verify", "Poll a verification predicate against a tab.", false, schemaFor(browserVerifyArgs{})},
	}
	for _, d := range defs {
		tc, err := entity.NewToolContract(d.name, d.description, d.schema, d.capability, d.mutating)
		if err != nil {
			return err
		}
		if err := contracts.Register(tc); err != nil {
			return err
		}
		if d.alias != "" {
			if err := contracts.AddAlias(d.name, d.alias); err != nil {
				return err
			}
		}
	}
	return nil
}
