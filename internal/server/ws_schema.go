package server

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// wsEnvelope is the inbound client frame.
type wsEnvelope struct {
	Type    string         `json:"type"`
	Content map[string]any `json:"content"`
}

const wsEnvelopeSchema = `{
	"type": "object",
	"properties": {
		"type": {"type": "string"},
		"content": {"type": "object"}
	},
	"required": ["type"]
}`

// Per-type content schemas. Types absent here accept any object.
var wsContentSchemas = map[string]string{
	"init_agent": `{
		"type": "object",
		"properties": {
			"tool_args": {"type": "object"},
			"thinking_tokens": {"type": "integer", "minimum": 0}
		}
	}`,
	"query": `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"resume": {"type": "boolean"},
			"files": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	"edit_query": `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"resume": {"type": "boolean"},
			"files": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	"enhance_prompt": `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"files": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	"cancel":         `{"type": "object"}`,
	"workspace_info": `{"type": "object"}`,
	"ping":           `{"type": "object"}`,
}

type wsSchemaSet struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	contents map[string]*jsonschema.Schema
}

var wsSchemas wsSchemaSet

func initWSSchemas() error {
	wsSchemas.once.Do(func() {
		envelope, err := jsonschema.CompileString("ws_envelope", wsEnvelopeSchema)
		if err != nil {
			wsSchemas.initErr = err
			return
		}
		wsSchemas.envelope = envelope
		wsSchemas.contents = make(map[string]*jsonschema.Schema, len(wsContentSchemas))
		for name, src := range wsContentSchemas {
			compiled, err := jsonschema.CompileString("ws_content_"+name, src)
			if err != nil {
				wsSchemas.initErr = err
				return
			}
			wsSchemas.contents[name] = compiled
		}
	})
	return wsSchemas.initErr
}

// validateEnvelope parses and validates one inbound frame. A JSON parse
// failure and a schema violation are distinct errors so the caller can
// answer with the right diagnostic.
var errInvalidJSON = fmt.Errorf("invalid JSON format")

func validateEnvelope(raw []byte) (wsEnvelope, error) {
	if err := initWSSchemas(); err != nil {
		return wsEnvelope{}, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return wsEnvelope{}, errInvalidJSON
	}
	if err := wsSchemas.envelope.Validate(payload); err != nil {
		return wsEnvelope{}, fmt.Errorf("invalid message envelope: %w", err)
	}

	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return wsEnvelope{}, errInvalidJSON
	}
	if envelope.Content == nil {
		envelope.Content = map[string]any{}
	}
	if schema, ok := wsSchemas.contents[envelope.Type]; ok {
		var content any = envelope.Content
		if err := schema.Validate(content); err != nil {
			return wsEnvelope{}, fmt.Errorf("invalid %s content: %w", envelope.Type, err)
		}
	}
	return envelope, nil
}
