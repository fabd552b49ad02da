package worker

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCommandCapturesOutput(t *testing.T) {
	stdout, stderr, err := RunCommand(context.Background(), nil, "", "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if strings.TrimSpace(string(stdout)) != "out" {
		t.Errorf("stdout = %q, want out", stdout)
	}
	if strings.TrimSpace(string(stderr)) != "err" {
		t.Errorf("stderr = %q, want err", stderr)
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	_, stderr, err := RunCommand(context.Background(), nil, "", "sh", "-c", "echo bad >&2; exit 2")
	if err == nil {
		t.Fatal("RunCommand should fail on non-zero exit")
	}
	if !strings.Contains(string(stderr), "bad") {
		t.Errorf("stderr = %q, want it to contain bad", stderr)
	}
}

func TestRunCommandRespectsDir(t *testing.T) {
	dir := t.TempDir()
	stdout, _, err := RunCommand(context.Background(), nil, dir, "pwd")
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if !strings.Contains(strings.TrimSpace(string(stdout)), dir) {
		t.Errorf("pwd = %q, want %q", stdout, dir)
	}
}

func TestRunCommandCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := RunCommand(ctx, nil, "", "sleep", "10")
	if err == nil {
		t.Fatal("RunCommand should fail when the context expires")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, expected prompt termination", elapsed)
	}
}

func TestProcessManagerTracking(t *testing.T) {
	pm := NewProcessManager()
	if pm.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", pm.Count())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunCommand(context.Background(), pm, "", "sleep", "0.2")
	}()

	// The process registers shortly after start and unregisters after Wait.
	deadline := time.Now().Add(2 * time.Second)
	for pm.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pm.Count() != 1 {
		t.Fatalf("Count() = %d while running, want 1", pm.Count())
	}

	<-done
	if pm.Count() != 0 {
		t.Errorf("Count() = %d after exit, want 0", pm.Count())
	}
}

func TestProcessManagerKillAll(t *testing.T) {
	pm := NewProcessManager()

	errCh := make(chan error, 1)
	go func() {
		_, _, err := RunCommand(context.Background(), pm, "", "sleep", "30")
		errCh <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pm.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pm.Count() != 1 {
		t.Fatal("subprocess never registered")
	}

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("killed command should report an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command did not exit after KillAll")
	}
}
