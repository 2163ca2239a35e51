package skills

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestSchema(t *testing.T) {
	out, err := ManifestSchemaJSON()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(out, &schema))
	assert.Equal(t, "ZeroAgent skill manifest", schema["title"])
	assert.Nil(t, schema["required"])

	props := schema["properties"].(map[string]any)
	for _, field := range []string{"name", "version", "description", "executionMode", "tier", "schedule", "trigger", "command"} {
		assert.Contains(t, props, field)
	}
	mode := props["executionMode"].(map[string]any)
	assert.ElementsMatch(t, []any{"on-demand", "scheduled", "triggered"}, mode["enum"])
	assert.Equal(t, "array", props["command"].(map[string]any)["type"])
}
