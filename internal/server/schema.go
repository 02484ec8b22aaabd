package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const sessionUpdateSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"selectedCells":  {"type": "array", "items": {"type": "string", "minLength": 1}},
		"selectedRules":  {"type": "array", "items": {"type": "string", "minLength": 1}},
		"toggleCell":     {"type": "string", "minLength": 1},
		"toggleChecked":  {"type": "string", "minLength": 1},
		"toggleRule":     {"type": "string", "minLength": 1},
		"selectAll":      {"type": "object", "properties": {"filter": {"type": "string"}}, "additionalProperties": false},
		"toggleAllRules": {"type": "boolean"}
	}
}`

const runRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["selected_cells", "checks", "netlist", "layout"],
	"properties": {
		"selected_cells": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
		"checks":         {"type": "array", "minItems": 8, "maxItems": 8, "items": {"type": "boolean"}},
		"netlist":        {"type": "string"},
		"layout":         {"type": "string"}
	}
}`

// hierarchyDiffSchema only requires an object: lists of the wrong type are
// read as empty by nameList.
const hierarchyDiffSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"canonical": true,
		"supplied":  true,
		"text":      true
	}
}`

// schemaBase makes resource names absolute so the compiler never looks on disk
const schemaBase = "mem:///schemas/"

// schemas holds the compiled request contracts
type schemas struct {
	sessionUpdate *jsonschema.Schema
	runRequest    *jsonschema.Schema
	hierarchyDiff *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	sources := map[string]string{
		schemaBase + "session_update.json": sessionUpdateSchema,
		schemaBase + "run_request.json":    runRequestSchema,
		schemaBase + "hierarchy_diff.json": hierarchyDiffSchema,
	}
	for name, src := range sources {
		if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
		}
	}

	s := &schemas{}
	targets := map[string]**jsonschema.Schema{
		schemaBase + "session_update.json": &s.sessionUpdate,
		schemaBase + "run_request.json":    &s.runRequest,
		schemaBase + "hierarchy_diff.json": &s.hierarchyDiff,
	}
	for name, dst := range targets {
		compiled, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		*dst = compiled
	}
	return s, nil
}

// decodeValidated checks raw against schema and then decodes it into out
func decodeValidated(schema *jsonschema.Schema, raw []byte, out any) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// validateValue checks an outgoing value against schema
func validateValue(schema *jsonschema.Schema, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return decodeValidated(schema, raw, nil)
}
