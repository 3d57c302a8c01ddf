package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cangwd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	return path
}

func TestLoadConfigAndApply(t *testing.T) {
	path := writeConfig(t, "grpc_addr: \":9000\"\nreclaim_period: 2s\ndebug: true\n")

	fc, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	opts := Options{GRPCAddr: ":8473", ReclaimPeriod: time.Second}
	if err := fc.ApplyTo(&opts, nil); err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	if opts.GRPCAddr != ":9000" {
		t.Fatalf("GRPCAddr = %q, want :9000", opts.GRPCAddr)
	}
	if opts.ReclaimPeriod != 2*time.Second {
		t.Fatalf("ReclaimPeriod = %v, want 2s", opts.ReclaimPeriod)
	}
	if !fc.Debug {
		t.Fatal("expected Debug true")
	}
}

func TestApplyToRespectsExplicitFlags(t *testing.T) {
	path := writeConfig(t, "grpc_addr: \":9000\"\n")

	fc, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	opts := Options{GRPCAddr: ":1234"}
	explicit := map[string]bool{"grpc-addr": true}
	if err := fc.ApplyTo(&opts, explicit); err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	if opts.GRPCAddr != ":1234" {
		t.Fatalf("GRPCAddr = %q, want :1234 (explicit flag should win)", opts.GRPCAddr)
	}
}

func TestApplyToRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "reclaim_period: not-a-duration\n")

	fc, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	var opts Options
	if err := fc.ApplyTo(&opts, nil); err == nil {
		t.Fatal("expected error for unparseable reclaim_period")
	}
}
