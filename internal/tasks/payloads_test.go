package tasks

import (
	"encoding/json"
	"testing"
)

func TestNewCandidateAnalyzeTask(t *testing.T) {
	task, err := NewCandidateAnalyzeTask(7, 3, "cid-1")
	if err != nil {
		t.Fatalf("NewCandidateAnalyzeTask: %v", err)
	}
	if task.Type() != TypeCandidateAnalyze {
		t.Errorf("type = %q", task.Type())
	}
	var p CandidateAnalyzePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.CandidateID != 7 || p.ActorID != 3 || p.CorrelationID != "cid-1" {
		t.Errorf("payload = %+v", p)
	}
}
