package schema

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// pipelineDocument is the schema of the on-disk pipeline file format. The
// per-step backend fields are validated separately against the composed
// union; this covers the envelope: metadata, data-model version markers and
// the end-user parameter declarations.
const pipelineDocument = `{
  "type": "object",
  "required": ["filters"],
  "properties": {
    "_backend": { "const": "pipeline" },
    "_major": { "type": "integer", "minimum": 0 },
    "_minor": { "type": "integer", "minimum": 0 },
    "metadata": {
      "type": "object",
      "properties": {
        "title": { "type": "string" },
        "description": { "type": "string" },
        "author": { "type": "string" },
        "keywords": { "type": "array", "items": { "type": "string" } },
        "example_data_url": { "type": "string" }
      },
      "additionalProperties": false
    },
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["_backend"],
        "properties": {
          "_backend": { "type": "string", "minLength": 1 },
          "type": { "type": "string" },
          "_variability": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": { "type": "string", "minLength": 1 },
                "description": { "type": "string" },
                "type": { "enum": ["string", "integer", "number"] },
                "values": { "type": "string" },
                "target": { "type": "string" }
              },
              "additionalProperties": false
            }
          }
        }
      }
    }
  }
}`

var (
	documentOnce sync.Once
	documentSch  *jsonschema.Schema
)

// ValidateDocument checks the envelope shape of a decoded pipeline file.
func ValidateDocument(doc map[string]any) error {
	documentOnce.Do(func() {
		documentSch = jsonschema.MustCompileString("afwizard-pipeline.json", pipelineDocument)
	})
	normalized, err := normalize(doc)
	if err != nil {
		return &Error{Reason: err.Error()}
	}
	if err := documentSch.Validate(normalized); err != nil {
		return fromValidation(err)
	}
	return nil
}
