package experiment

import (
	"testing"

	"github.com/zot/actionq/internal/config"
)

func TestClassifier(t *testing.T) {
	c := NewClassifier([]config.ReadOnlyExperiment{
		{Name: "ro_peek", Enabled: true, ActionTypes: []string{"bonus_peek", "balance_check"}},
		{Name: "ro_off", Enabled: false, ActionTypes: []string{"track_view"}},
	})

	tests := []struct {
		actionType string
		want       bool
	}{
		{"bonus_peek", true},
		{"balance_check", true},
		{"track_view", false}, // experiment disabled
		{"spin", false},
	}
	for _, tt := range tests {
		if got := c.IsReadOnly(tt.actionType); got != tt.want {
			t.Errorf("IsReadOnly(%q) = %v, want %v", tt.actionType, got, tt.want)
		}
	}

	c.SetEnabled("ro_off", true)
	if !c.IsReadOnly("track_view") {
		t.Error("track_view should be read-only once ro_off is enabled")
	}
	c.SetEnabled("ro_peek", false)
	c.SetEnabled("ro_off", false)
	if c.Active() {
		t.Error("No experiment should be active")
	}
	if c.IsReadOnly("bonus_peek") {
		t.Error("No active experiment means nothing is read-only")
	}
}

func TestNilClassifier(t *testing.T) {
	var c *Classifier
	if c.IsReadOnly("anything") {
		t.Error("nil classifier should report not read-only")
	}
}
