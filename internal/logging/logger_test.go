package logging

import "testing"

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize err: %v", err)
	}
	if L().Core().Enabled(-1) {
		t.Fatal("expected nop logger to disable debug level")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize err: %v", err)
	}
	defer func() { logger = nil }()

	if L().Core().Enabled(0) {
		t.Fatal("info should be disabled at warn level")
	}
	if !L().Core().Enabled(1) {
		t.Fatal("warn should be enabled at warn level")
	}
}
