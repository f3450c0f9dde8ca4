package ipc

import (
	"path/filepath"
	"testing"
	"time"
)

func TestMessageCode_String(t *testing.T) {
	cases := map[MessageCode]string{
		SequenceStart:    "SEQUENCE_START",
		SequenceComplete: "SEQUENCE_COMPLETE",
		LoopUnknown:      "LOOP_UNKNOWN",
		LoopPass:         "LOOP_PASS",
		LoopFail:         "LOOP_FAIL",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", code, got, want)
		}
	}
}

func TestServerAcceptAndClientSend(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	sent := Message{Code: LoopPass, Name: "worker-1", Loop: 3}
	done := make(chan error, 1)
	go func() {
		done <- Send(sockPath, sent)
	}()

	msg, err := srv.Accept(2 * time.Second)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a message, got nil (timeout)")
	}
	if msg.Code != LoopPass || msg.Name != "worker-1" || msg.Loop != 3 {
		t.Errorf("unexpected message: %+v", msg)
	}

	if err := <-done; err != nil {
		t.Errorf("Send: %v", err)
	}
}

func TestServerAccept_TimeoutReturnsNil(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	srv, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	msg, err := srv.Accept(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if msg != nil {
		t.Errorf("expected nil message on timeout, got %+v", msg)
	}
}
