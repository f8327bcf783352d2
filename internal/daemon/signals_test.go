package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type mockServer struct {
	stopCalled bool
}

func (s *mockServer) Stop() { s.stopCalled = true }

func TestHandleSignalsSIGPIPE(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	serverC := make(chan ServerStopper, 1)

	notifyStoppingCalled := false
	notifyStopping := func(ctx context.Context) error {
		notifyStoppingCalled = true
		return nil
	}

	done := HandleSignals(ctx, cancel, signals, serverC, notifyStopping)

	mockSrv := &mockServer{}
	serverC <- mockSrv

	signals <- unix.SIGPIPE
	time.Sleep(100 * time.Millisecond)

	select {
	case <-ctx.Done():
		t.Fatal("context was canceled but should not have been")
	default:
	}

	assert.False(t, mockSrv.stopCalled, "Stop() should not have been called")
	assert.False(t, notifyStoppingCalled, "notifyStopping should not have been called")

	signals <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for done channel to close during cleanup")
	}
}

func TestHandleSignalsSIGUSR1(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	serverC := make(chan ServerStopper, 1)

	done := HandleSignals(ctx, cancel, signals, serverC, func(ctx context.Context) error { return nil })

	mockSrv := &mockServer{}
	serverC <- mockSrv

	signals <- unix.SIGUSR1
	time.Sleep(100 * time.Millisecond)

	select {
	case <-ctx.Done():
		t.Fatal("context was canceled but should not have been")
	default:
	}

	stackFile := filepath.Join(os.TempDir(), fmt.Sprintf("lactd.%d.stacks.log", os.Getpid()))
	_, err := os.Stat(stackFile)
	require.NoError(t, err, "stack dump file should exist")
	_ = os.Remove(stackFile)

	assert.False(t, mockSrv.stopCalled)

	signals <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for done channel to close during cleanup")
	}
}

func TestHandleSignalsSIGTERM(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	serverC := make(chan ServerStopper, 1)

	notifyStoppingCalled := false
	notifyStopping := func(ctx context.Context) error {
		notifyStoppingCalled = true
		return nil
	}

	done := HandleSignals(ctx, cancel, signals, serverC, notifyStopping)

	mockSrv := &mockServer{}
	serverC <- mockSrv
	time.Sleep(50 * time.Millisecond)

	signals <- syscall.SIGTERM

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for done channel to close")
	}

	select {
	case <-ctx.Done():
	default:
		t.Fatal("context should have been canceled")
	}

	assert.True(t, mockSrv.stopCalled, "Stop() should have been called")
	assert.True(t, notifyStoppingCalled, "notifyStopping should have been called")
}

func TestDumpStacks(t *testing.T) {
	tmpDir := t.TempDir()
	stackFile := filepath.Join(tmpDir, "stacks.log")

	dumpStacks(stackFile)

	content, err := os.ReadFile(stackFile)
	require.NoError(t, err)
	assert.NotEmpty(t, content)

	dumpStacks(filepath.Join(tmpDir, "missing-dir", "stacks.log"))
}
