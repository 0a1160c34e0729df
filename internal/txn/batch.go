package txn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/specdeck/specdeck/internal/spec"
)

// batchSchema validates the modification batch envelope before any op
// is decoded, so malformed files fail with a precise location instead
// of a decode panic deep in an op.
const batchSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["modifications"],
  "properties": {
    "modifications": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {
          "kind": {
            "enum": [
              "set_status", "complete_task", "mark_blocked", "unblock",
              "add_journal", "bulk_journal", "add_verification",
              "execute_verification", "update_metadata", "move_spec",
              "create_node", "remove_node", "recalculate_counts",
              "sync_metadata", "set_git_metadata"
            ]
          }
        }
      }
    }
  }
}`

var compiledBatchSchema = jsonschema.MustCompileString("sdd://modification-batch.json", batchSchema)

// envelope is the modification batch file shape.
type envelope struct {
	Modifications []json.RawMessage `json:"modifications"`
}

// DecodeBatch parses a modification batch document into ops.
func DecodeBatch(data []byte) ([]Op, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, spec.Wrap(spec.KindUser, err, "parsing modification batch")
	}
	if err := compiledBatchSchema.Validate(generic); err != nil {
		return nil, spec.Wrap(spec.KindUser, err, "modification batch does not match the schema")
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, spec.Wrap(spec.KindUser, err, "parsing modification batch")
	}
	ops := make([]Op, 0, len(env.Modifications))
	for i, raw := range env.Modifications {
		op, err := DecodeOp(raw)
		if err != nil {
			return nil, spec.Wrap(spec.KindUser, err, "modification %d", i)
		}
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return nil, spec.E(spec.KindUser, "modification batch is empty")
	}
	return ops, nil
}

// DecodeOp parses one tagged op record.
func DecodeOp(raw json.RawMessage) (Op, error) {
	var tag struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("reading op kind: %w", err)
	}
	decode := func(op Op) (Op, error) {
		if err := json.Unmarshal(raw, op); err != nil {
			return nil, fmt.Errorf("decoding %s op: %w", tag.Kind, err)
		}
		return deref(op), nil
	}
	switch tag.Kind {
	case "set_status":
		return decode(&SetStatus{})
	case "complete_task":
		return decode(&CompleteTask{})
	case "mark_blocked":
		return decode(&MarkBlocked{})
	case "unblock":
		return decode(&Unblock{})
	case "add_journal":
		return decode(&AddJournal{})
	case "bulk_journal":
		return decode(&BulkJournal{})
	case "add_verification":
		return decode(&AddVerification{})
	case "execute_verification":
		return decode(&ExecuteVerification{})
	case "update_metadata":
		return decode(&UpdateMetadata{})
	case "move_spec":
		return decode(&MoveSpec{})
	case "create_node":
		return decode(&CreateNode{})
	case "remove_node":
		return decode(&RemoveNode{})
	case "recalculate_counts":
		return RecalculateCounts{}, nil
	case "sync_metadata":
		return SyncMetadata{}, nil
	case "set_git_metadata":
		return decode(&SetGitMetadata{})
	case "":
		return nil, fmt.Errorf("op has no kind")
	default:
		return nil, fmt.Errorf("unknown op kind %q", tag.Kind)
	}
}

// deref unwraps the pointer used for decoding back to the value type
// ops are declared with.
func deref(op Op) Op {
	switch v := op.(type) {
	case *SetStatus:
		return *v
	case *CompleteTask:
		return *v
	case *MarkBlocked:
		return *v
	case *Unblock:
		return *v
	case *AddJournal:
		return *v
	case *BulkJournal:
		return *v
	case *AddVerification:
		return *v
	case *ExecuteVerification:
		return *v
	case *UpdateMetadata:
		return *v
	case *MoveSpec:
		return *v
	case *CreateNode:
		return *v
	case *RemoveNode:
		return *v
	case *SetGitMetadata:
		return *v
	}
	return op
}

// EncodeBatch renders ops as a modification batch document, the
// inverse of DecodeBatch.
func EncodeBatch(ops []Op) []byte {
	records := make([]map[string]any, 0, len(ops))
	for _, op := range ops {
		record := map[string]any{}
		if data, err := json.Marshal(op); err == nil {
			_ = json.Unmarshal(data, &record)
		}
		record["kind"] = op.Kind()
		records = append(records, record)
	}
	data, err := json.MarshalIndent(map[string]any{"modifications": records}, "", "  ")
	if err != nil {
		return []byte(`{"modifications":[]}`)
	}
	return append(data, '\n')
}

// KindNames returns the supported op kinds, for help output.
func KindNames() string {
	return strings.Join([]string{
		"set_status", "complete_task", "mark_blocked", "unblock",
		"add_journal", "bulk_journal", "add_verification",
		"execute_verification", "update_metadata", "move_spec",
		"create_node", "remove_node", "recalculate_counts",
		"sync_metadata", "set_git_metadata",
	}, ", ")
}
