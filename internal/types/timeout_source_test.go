// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"testing"
)

func TestTimeoutSource_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		source TimeoutSource
		want   bool
	}{
		{"project valid", TimeoutSourceProject, true},
		{"runner valid", TimeoutSourceRunner, true},
		{"job valid", TimeoutSourceJob, true},
		{"unknown valid", TimeoutSourceUnknown, true},
		{"invalid empty", TimeoutSource(""), false},
		{"invalid value", TimeoutSource("pipeline"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.source.IsValid(); got != tt.want {
				t.Errorf("TimeoutSource.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeoutSource_IsResolved(t *testing.T) {
	tests := []struct {
		name   string
		source TimeoutSource
		want   bool
	}{
		{"project resolved", TimeoutSourceProject, true},
		{"runner resolved", TimeoutSourceRunner, true},
		{"job resolved", TimeoutSourceJob, true},
		{"unknown not resolved", TimeoutSourceUnknown, false},
		{"empty not resolved", TimeoutSource(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.source.IsResolved(); got != tt.want {
				t.Errorf("TimeoutSource.IsResolved() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeoutSource_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(TimeoutSourceRunner)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"runner"` {
		t.Errorf("Marshal() = %s, want %q", data, `"runner"`)
	}

	var source TimeoutSource
	if err := json.Unmarshal([]byte(`"job"`), &source); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if source != TimeoutSourceJob {
		t.Errorf("Unmarshal() = %v, want %v", source, TimeoutSourceJob)
	}

	if err := json.Unmarshal([]byte(`"schedule"`), &source); err == nil {
		t.Error("Unmarshal() expected error for invalid source")
	}
}

func TestParseTimeoutSource(t *testing.T) {
	source, err := ParseTimeoutSource("project")
	if err != nil {
		t.Fatalf("ParseTimeoutSource() error = %v", err)
	}
	if source != TimeoutSourceProject {
		t.Errorf("ParseTimeoutSource() = %v, want %v", source, TimeoutSourceProject)
	}

	if _, err := ParseTimeoutSource("nope"); err == nil {
		t.Error("ParseTimeoutSource() expected error for invalid input")
	}
}

func TestAllTimeoutSources(t *testing.T) {
	all := AllTimeoutSources()
	if len(all) != 4 {
		t.Fatalf("AllTimeoutSources() returned %d sources, want 4", len(all))
	}
	for _, s := range all {
		if !s.IsValid() {
			t.Errorf("AllTimeoutSources() contains invalid source %v", s)
		}
	}
}
