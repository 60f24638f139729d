package play

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema is the integrity schema every play document must satisfy
// before it is written to or accepted from disk. Decimal fields serialize as
// JSON strings.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "symbol", "strategy", "contract", "entry", "exit", "state", "created_at", "updated_at"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "symbol": {"type": "string", "minLength": 1},
    "strategy": {"type": "string", "minLength": 1},
    "state": {"enum": ["new", "pending_opening", "open", "pending_closing", "closed", "expired"]},
    "contract": {"$ref": "#/$defs/contract"},
    "legs": {"type": "array", "items": {"$ref": "#/$defs/contract"}},
    "entry": {
      "type": "object",
      "required": ["target_price", "buffer", "order_type"],
      "properties": {
        "target_price": {"type": "string"},
        "buffer": {"type": "string"},
        "order_type": {"enum": ["market", "limit"]}
      }
    },
    "exit": {
      "type": "object",
      "properties": {
        "take_profit": {"$ref": "#/$defs/target"},
        "stop_loss": {"$ref": "#/$defs/target"},
        "max_hold_hours": {"type": "integer", "minimum": 0}
      }
    },
    "oco": {"type": "array", "items": {"type": "string"}},
    "oto": {"type": "array", "items": {"type": "string"}},
    "retries": {"type": "integer", "minimum": 0}
  },
  "$defs": {
    "contract": {
      "type": "object",
      "required": ["type", "strike", "expiration", "ratio"],
      "properties": {
        "type": {"enum": ["CALL", "PUT"]},
        "strike": {"type": "string"},
        "expiration": {"type": "string"},
        "ratio": {"type": "integer"}
      }
    },
    "target": {
      "type": "object",
      "required": ["kind", "value"],
      "properties": {
        "kind": {"enum": ["price", "percent", "premium"]},
        "value": {"type": "string"}
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("play-record.json", recordSchema)

// ValidateRecord checks raw document bytes against the record schema.
func ValidateRecord(raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("play record: invalid json: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("play record: schema violation: %w", err)
	}
	return nil
}

// Encode serializes a play after validating both the struct and the
// resulting document, so a structurally broken record can never reach disk.
func Encode(p *Play) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("play %s: encode: %w", p.ID, err)
	}
	if err := ValidateRecord(raw); err != nil {
		return nil, fmt.Errorf("play %s: %w", p.ID, err)
	}
	return raw, nil
}

// Decode parses and validates a play document read from disk.
func Decode(raw []byte) (*Play, error) {
	if err := ValidateRecord(raw); err != nil {
		return nil, err
	}
	var p Play
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("play record: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
