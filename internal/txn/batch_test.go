package txn

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/specdeck/specdeck/internal/spec"
)

func TestDecodeBatch(t *testing.T) {
	data := []byte(`{
  "modifications": [
    {"kind": "set_status", "task_id": "task-1-1", "status": "in_progress"},
    {"kind": "complete_task", "task_id": "task-1-2", "journal_title": "Done", "journal_content": "shipped"},
    {"kind": "move_spec", "target_bucket": "completed"},
    {"kind": "recalculate_counts"}
  ]
}`)
	ops, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch failed: %v", err)
	}
	want := []Op{
		SetStatus{NodeID: "task-1-1", Status: spec.StatusInProgress},
		CompleteTask{NodeID: "task-1-2", JournalTitle: "Done", JournalContent: "shipped"},
		MoveSpec{TargetBucket: "completed"},
		RecalculateCounts{},
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("ops (-want +got):\n%s", diff)
	}
}

func TestDecodeBatchRejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{nope`},
		{"missing modifications", `{"ops": []}`},
		{"empty batch", `{"modifications": []}`},
		{"unknown kind", `{"modifications": [{"kind": "explode"}]}`},
		{"kind missing", `{"modifications": [{"task_id": "task-1-1"}]}`},
		{"modifications not array", `{"modifications": {"kind": "set_status"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatch([]byte(tt.data))
			if !spec.IsKind(err, spec.KindUser) {
				t.Errorf("error = %v, want UserError", err)
			}
		})
	}
}

func TestEncodeBatchRoundTrip(t *testing.T) {
	ops := []Op{
		SetStatus{NodeID: "task-1-1", Status: spec.StatusCompleted, Note: "done early"},
		MarkBlocked{NodeID: "task-2-1", Reason: "upstream outage", Type: "external"},
		UpdateMetadata{NodeID: "task-1-2", Fields: map[string]any{spec.MetaSkill: "backend"}},
		SyncMetadata{},
	}
	decoded, err := DecodeBatch(EncodeBatch(ops))
	if err != nil {
		t.Fatalf("DecodeBatch(EncodeBatch) failed: %v", err)
	}
	if diff := cmp.Diff(ops, decoded); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestKindNamesCoversDecoder(t *testing.T) {
	for _, kind := range strings.Split(KindNames(), ", ") {
		if _, err := DecodeOp([]byte(`{"kind": "` + kind + `"}`)); err != nil {
			t.Errorf("advertised kind %q does not decode: %v", kind, err)
		}
	}
}
