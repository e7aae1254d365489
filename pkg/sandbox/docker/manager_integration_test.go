package docker_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mariozechner/agentcore/pkg/sandbox"
	"github.com/mariozechner/agentcore/pkg/sandbox/docker"
)

func TestIntegration_DockerManager_WarmKernelPersistsState(t *testing.T) {
	if os.Getenv("DOCKER_HOST") == "" {
		t.Skip("Skipping integration test: DOCKER_HOST not set")
	}

	mgr, err := docker.New()
	if err != nil {
		t.Skipf("Skipping test: Docker not available or failed to init: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sessionID := uuid.New().String()
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mgr.Stop(cleanupCtx, sessionID)
	}()

	if _, err := mgr.Run(ctx, sessionID, sandbox.LanguagePython, "x = 41"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	res, err := mgr.Run(ctx, sessionID, sandbox.LanguagePython, "print(x + 1)")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res.Stdout != "42\n" {
		t.Errorf("expected kernel state to persist across calls, got stdout %q", res.Stdout)
	}
}

func TestIntegration_DockerManager_BashSharesShellState(t *testing.T) {
	if os.Getenv("DOCKER_HOST") == "" {
		t.Skip("Skipping integration test: DOCKER_HOST not set")
	}

	mgr, err := docker.New()
	if err != nil {
		t.Skipf("Skipping test: Docker not available or failed to init: %v", err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sessionID := uuid.New().String()
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mgr.Stop(cleanupCtx, sessionID)
	}()

	if _, err := mgr.Run(ctx, sessionID, sandbox.LanguageBash, "cd /tmp && echo marker > note.txt"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	res, err := mgr.Run(ctx, sessionID, sandbox.LanguageBash, "cat /tmp/note.txt")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res.Stdout != "marker\n" {
		t.Errorf("expected the file written by the first call to be visible, got stdout %q", res.Stdout)
	}
}
