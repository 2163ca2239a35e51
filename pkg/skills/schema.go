package skills

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ManifestSchema returns the JSON schema of skill.json
func ManifestSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&Manifest{})
	schema.Title = "ZeroAgent skill manifest"
	return schema
}

// ManifestSchemaJSON renders ManifestSchema as indented JSON
func ManifestSchemaJSON() ([]byte, error) {
	return json.MarshalIndent(ManifestSchema(), "", "  ")
}
