package wiring

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// reflector matches the LLM-facing schema shape the Tool Contract
// Registry stores: inlined (no $ref indirection) and without the
// $schema/$id envelope fields a provider's function-calling API doesn't
// expect.
var reflector = &jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// schemaFor generates a tool's argument schema from a Go struct,
// grounded on the same jsonschema.Reflector-plus-struct-tags shape used
// elsewhere in the retrieved corpus for function-calling tool schemas.
func schemaFor(v any) []byte {
	schema := reflector.Reflect(v)
	body, err := json.Marshal(schema)
	if err != nil {
		return []byte(`{}`)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		delete(m, "$schema")
		delete(m, "$id")
		if out, err := json.Marshal(m); err == nil {
			return out
		}
	}
	return body
}
