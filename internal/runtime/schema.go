package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codex-k8s/tool-relay/internal/constants"
)

// compileSchema compiles a tool input schema. An empty schema yields nil.
func compileSchema(toolName string, schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	// Round-trip through JSON so YAML scalars become JSON numbers and strings.
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: encode input_schema: %w", toolName, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tool %s: decode input_schema: %w", toolName, err)
	}

	c := jsonschema.NewCompiler()
	location := toolName + ".schema.json"
	if err := c.AddResource(location, doc); err != nil {
		return nil, fmt.Errorf("tool %s: add input_schema: %w", toolName, err)
	}
	compiled, err := c.Compile(location)
	if err != nil {
		return nil, fmt.Errorf("tool %s: compile input_schema: %w", toolName, err)
	}
	return compiled, nil
}

// validateArguments checks caller arguments; the injected session id is not part of the contract.
func validateArguments(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	instance := make(map[string]any, len(args))
	for k, v := range args {
		if k == constants.SessionIDArgument {
			continue
		}
		instance[k] = v
	}
	return schema.Validate(instance)
}
