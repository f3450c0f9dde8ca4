package history

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDB_OpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	if err := db.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestDB_WorkerRunLifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	runID, err := db.StartWorkerRun("worker-1", "/tmp/seq.txt", 5)
	if err != nil {
		t.Fatalf("StartWorkerRun: %v", err)
	}

	if err := db.LogLoopResult(runID, 1, "PASS", ""); err != nil {
		t.Fatalf("LogLoopResult: %v", err)
	}
	if err := db.LogLoopResult(runID, 2, "FAIL", "expect timed out"); err != nil {
		t.Fatalf("LogLoopResult: %v", err)
	}

	if err := db.FinishWorkerRun(runID, 1, 1, "complete"); err != nil {
		t.Fatalf("FinishWorkerRun: %v", err)
	}

	runs, err := db.GetRecentWorkerRuns(10)
	if err != nil {
		t.Fatalf("GetRecentWorkerRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != "complete" || runs[0].PassLoops != 1 || runs[0].FailLoops != 1 {
		t.Errorf("unexpected run state: %+v", runs[0])
	}

	results, err := db.GetLoopResults(runID)
	if err != nil {
		t.Fatalf("GetLoopResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 loop results, got %d", len(results))
	}
	if results[1].FailureMessage != "expect timed out" {
		t.Errorf("unexpected failure message: %q", results[1].FailureMessage)
	}
}

func TestDB_SchedulerEvents(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.LogSchedulerEvent("startup", "entry sequence loaded"); err != nil {
		t.Fatalf("LogSchedulerEvent: %v", err)
	}

	events, err := db.GetRecentSchedulerEvents(10)
	if err != nil {
		t.Fatalf("GetRecentSchedulerEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "startup" {
		t.Errorf("unexpected events: %+v", events)
	}
}
