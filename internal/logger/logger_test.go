package logger

import "testing"

func TestInitFallsBackToInfo(t *testing.T) {
	Init("not-a-level")
	if Log == nil {
		t.Fatalf("expected logger to be built")
	}
	if Log.Core().Enabled(-1) {
		t.Fatalf("debug should be disabled for unknown level")
	}
	if !Log.Core().Enabled(0) {
		t.Fatalf("info should be enabled for unknown level")
	}
}

func TestInitDebug(t *testing.T) {
	Init("debug")
	if !Log.Core().Enabled(-1) {
		t.Fatalf("debug should be enabled")
	}
}
