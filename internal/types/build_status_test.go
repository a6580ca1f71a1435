// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"testing"
)

func TestBuildStatus_String(t *testing.T) {
	tests := []struct {
		name   string
		status BuildStatus
		want   string
	}{
		{"pending", BuildStatusPending, "pending"},
		{"running", BuildStatusRunning, "running"},
		{"completed", BuildStatusCompleted, "completed"},
		{"failed", BuildStatusFailed, "failed"},
		{"cancelled", BuildStatusCancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("BuildStatus.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status BuildStatus
		want   bool
	}{
		{"pending valid", BuildStatusPending, true},
		{"running valid", BuildStatusRunning, true},
		{"completed valid", BuildStatusCompleted, true},
		{"failed valid", BuildStatusFailed, true},
		{"cancelled valid", BuildStatusCancelled, true},
		{"invalid empty", BuildStatus(""), false},
		{"invalid typo", BuildStatus("runing"), false}, //nolint:misspell // cspell:disable-line
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("BuildStatus.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status BuildStatus
		want   bool
	}{
		{"pending not terminal", BuildStatusPending, false},
		{"running not terminal", BuildStatusRunning, false},
		{"completed terminal", BuildStatusCompleted, true},
		{"failed terminal", BuildStatusFailed, true},
		{"cancelled terminal", BuildStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("BuildStatus.IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		from   BuildStatus
		to     BuildStatus
		want   bool
	}{
		{"pending to running", BuildStatusPending, BuildStatusRunning, true},
		{"pending to cancelled", BuildStatusPending, BuildStatusCancelled, true},
		{"pending to completed", BuildStatusPending, BuildStatusCompleted, false},
		{"running to completed", BuildStatusRunning, BuildStatusCompleted, true},
		{"running to failed", BuildStatusRunning, BuildStatusFailed, true},
		{"running to cancelled", BuildStatusRunning, BuildStatusCancelled, true},
		{"running to pending", BuildStatusRunning, BuildStatusPending, false},
		{"completed is terminal", BuildStatusCompleted, BuildStatusRunning, false},
		{"failed is terminal", BuildStatusFailed, BuildStatusRunning, false},
		{"cancelled is terminal", BuildStatusCancelled, BuildStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%v → %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBuildStatus_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(BuildStatusRunning)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"running"` {
		t.Errorf("Marshal() = %s, want %q", data, `"running"`)
	}

	var status BuildStatus
	if err := json.Unmarshal([]byte(`"failed"`), &status); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if status != BuildStatusFailed {
		t.Errorf("Unmarshal() = %v, want %v", status, BuildStatusFailed)
	}

	if err := json.Unmarshal([]byte(`"bogus"`), &status); err == nil {
		t.Error("Unmarshal() expected error for invalid status")
	}
}

func TestParseBuildStatus(t *testing.T) {
	status, err := ParseBuildStatus("cancelled")
	if err != nil {
		t.Fatalf("ParseBuildStatus() error = %v", err)
	}
	if status != BuildStatusCancelled {
		t.Errorf("ParseBuildStatus() = %v, want %v", status, BuildStatusCancelled)
	}

	if _, err := ParseBuildStatus("nope"); err == nil {
		t.Error("ParseBuildStatus() expected error for invalid input")
	}
}

func TestAllBuildStatuses(t *testing.T) {
	all := AllBuildStatuses()
	if len(all) != 5 {
		t.Fatalf("AllBuildStatuses() returned %d statuses, want 5", len(all))
	}
	for _, s := range all {
		if !s.IsValid() {
			t.Errorf("AllBuildStatuses() contains invalid status %v", s)
		}
	}
}
