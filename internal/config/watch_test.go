package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchYAML = `
targets:
  - name: sw
    kind: snmp
    address: 10.0.0.1
`

func TestWatch_MissingFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := Watch(ctx, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(watchYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path) }()

	time.Sleep(50 * time.Millisecond) // let the watcher arm
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v after cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestWatch_SurvivesRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(watchYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path) }()
	time.Sleep(50 * time.Millisecond)

	// One edit that validates and one that does not. The watcher only
	// reports, so it must keep running through both.
	if err := os.WriteFile(path, []byte(watchYAML+"listen_addr: \":9110\"\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("targets: ["), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Watch exited mid-watch: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v after cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}
