package models

import (
	"encoding/json"
	"testing"
)

func TestConditionSetUnmarshal(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantSimple   bool
		wantAdvanced bool
		wantErr      bool
	}{
		{
			name:       "tagged simple",
			input:      `{"simple":{"status":"open"}}`,
			wantSimple: true,
		},
		{
			name:         "tagged advanced",
			input:        `{"advanced":[{"field":"status","operator":"equals","value":"open"}]}`,
			wantAdvanced: true,
		},
		{
			name:       "legacy flat map",
			input:      `{"status":"open","priority":"high"}`,
			wantSimple: true,
		},
		{
			name:       "empty object becomes empty simple set",
			input:      `{}`,
			wantSimple: true,
		},
		{
			name:    "both variants rejected",
			input:   `{"simple":{"a":1},"advanced":[{"field":"a","operator":"equals","value":1}]}`,
			wantErr: true,
		},
		{
			name:    "non-object rejected",
			input:   `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set ConditionSet
			err := json.Unmarshal([]byte(tt.input), &set)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tt.wantSimple && !set.IsSimple() {
				t.Error("expected simple variant")
			}
			if tt.wantAdvanced && !set.IsAdvanced() {
				t.Error("expected advanced variant")
			}
		})
	}
}

func TestConditionSetLegacyFlatMapKeepsFields(t *testing.T) {
	var set ConditionSet
	if err := json.Unmarshal([]byte(`{"status":"open","queue_id":3}`), &set); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if set.Simple["status"] != "open" {
		t.Errorf("status = %v", set.Simple["status"])
	}
	if set.Simple["queue_id"] != float64(3) {
		t.Errorf("queue_id = %v", set.Simple["queue_id"])
	}
}

func TestConditionSetMarshalRoundTrip(t *testing.T) {
	original := ConditionSet{
		Advanced: []Condition{{Field: "priority", Operator: OpIn, Value: []any{"high", "critical"}}},
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ConditionSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.IsAdvanced() || len(decoded.Advanced) != 1 {
		t.Fatalf("round trip lost the advanced variant: %+v", decoded)
	}
	if decoded.Advanced[0].Field != "priority" || decoded.Advanced[0].Operator != OpIn {
		t.Errorf("round trip mangled the condition: %+v", decoded.Advanced[0])
	}
}
