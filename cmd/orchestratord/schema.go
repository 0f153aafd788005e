package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const completionSchema = `{
  "type": "object",
  "required": ["prompt"],
  "additionalProperties": false,
  "properties": {
    "prompt": {"type": "string"},
    "options": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "useCache": {"type": "boolean"},
        "race": {"type": "boolean"}
      }
    }
  }
}`

const summarizeSchema = `{
  "type": "object",
  "required": ["text"],
  "additionalProperties": false,
  "properties": {
    "text": {"type": "string"},
    "ratio": {"type": "number"}
  }
}`

var (
	completionRequestSchema = jsonschema.MustCompileString("completion.json", completionSchema)
	summarizeRequestSchema  = jsonschema.MustCompileString("summarize.json", summarizeSchema)
)

// decodeValidated checks body against schema and then decodes it into dst.
func decodeValidated(schema *jsonschema.Schema, body []byte, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("request does not match schema: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
