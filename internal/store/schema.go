package store

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// pipelineSchema — JSON Schema определения пайплайна.
// Проверяется до строгого декодирования в domain.Pipeline, чтобы
// ошибки в YAML давали осмысленные сообщения с путями.
const pipelineSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "name", "steps"],
  "additionalProperties": false,
  "properties": {
    "id": {"type": "string", "minLength": 1, "pattern": "^[a-zA-Z0-9_-]+$"},
    "name": {"type": "string", "minLength": 1},
    "schedule": {"type": "string"},
    "schedulePaused": {"type": "boolean"},
    "env": {"type": "string"},
    "keepWorkDir": {"type": "boolean"},
    "inputs": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "additionalProperties": false,
        "properties": {
          "type": {"enum": ["string", "number", "boolean", "object"]},
          "required": {"type": "boolean"},
          "default": {},
          "description": {"type": "string"}
        }
      }
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "oneOf": [
          {"$ref": "#/$defs/step"},
          {
            "type": "object",
            "required": ["parallel"],
            "additionalProperties": false,
            "properties": {
              "parallel": {
                "type": "array",
                "minItems": 1,
                "items": {"$ref": "#/$defs/step"}
              }
            }
          }
        ]
      }
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["name", "module"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "module": {"type": "string", "minLength": 1},
        "params": {"type": "object"},
        "dependsOn": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

// compilePipelineSchema компилирует встроенную схему.
func compilePipelineSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString("pipeline.schema.json", pipelineSchema)
	if err != nil {
		return nil, fmt.Errorf("compile pipeline schema: %w", err)
	}
	return schema, nil
}
