package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"

	"orchestrion/internal/llm"
)

// BuildSchema reflects a Go struct into the function-calling parameter
// schema for a tool, following haasonsaas-nexus's internal/config/schema.go
// (invopop/jsonschema.Reflector over a struct pointer).
func BuildSchema(name, description string, argsStruct interface{}) (llm.ToolSchema, error) {
	reflector := &jsonschema.Reflector{FieldNameTag: "json", DoNotReference: true}
	schema := reflector.Reflect(argsStruct)

	raw, err := json.Marshal(schema)
	if err != nil {
		return llm.ToolSchema{}, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return llm.ToolSchema{}, fmt.Errorf("decode schema for %s: %w", name, err)
	}

	return llm.ToolSchema{Name: name, Description: description, Parameters: params}, nil
}

// schemaValidator lazily compiles and caches a santhosh-tekuri/jsonschema/v6
// validator per tool, following hieuntg81-alfred-ai's internal/adapter/tool/
// schema_validate.go (SchemaValidatingTool).
type schemaValidator struct {
	mu     sync.Mutex
	cached map[string]*jsonschemav6.Schema
}

func newSchemaValidator() *schemaValidator {
	return &schemaValidator{cached: make(map[string]*jsonschemav6.Schema)}
}

// Validate checks args against toolName's parameter schema, compiling and
// caching it on first use. A tool with no registered schema is not
// validated (schemas are optional for builtins with no structured args).
func (v *schemaValidator) Validate(toolName string, parameters map[string]interface{}, args map[string]interface{}) error {
	if parameters == nil {
		return nil
	}
	compiled, err := v.compiled(toolName, parameters)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", toolName, err)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args for %s: %w", toolName, err)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode args for %s: %w", toolName, err)
	}

	return compiled.Validate(decoded)
}

func (v *schemaValidator) compiled(toolName string, parameters map[string]interface{}) (*jsonschemav6.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cached[toolName]; ok {
		return s, nil
	}

	compiler := jsonschemav6.NewCompiler()
	resourceName := toolName + ".json"
	if err := compiler.AddResource(resourceName, parameters); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}
	v.cached[toolName] = schema
	return schema, nil
}
