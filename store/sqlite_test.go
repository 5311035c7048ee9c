package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/taipm/agentrun/agent"
)

func openTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

func TestSQLiteStore_SaveThenLoadRoundTrips(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()
	task := sampleTask("t1")

	if err := s.Save(ctx, task); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a loaded task, got nil")
	}
	if loaded.Name != task.Name || loaded.Description != task.Description {
		t.Errorf("loaded task does not match saved task: %+v", loaded)
	}
	if loaded.Status != task.Status {
		t.Errorf("expected status %s, got %s", task.Status, loaded.Status)
	}
	if len(loaded.AssignedTools) != 1 || loaded.AssignedTools[0] != "WebSearch__search" {
		t.Errorf("expected assigned tools to round-trip through JSON, got %v", loaded.AssignedTools)
	}
	if loaded.Metadata["key"] != "value" {
		t.Errorf("expected metadata to round-trip through JSON, got %v", loaded.Metadata)
	}
}

func TestSQLiteStore_LoadMissingReturnsNilNil(t *testing.T) {
	s := openTestSQLiteStore(t)
	task, err := s.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error for a missing task, got %v", err)
	}
	if task != nil {
		t.Errorf("expected nil task for a missing id, got %+v", task)
	}
}

func TestSQLiteStore_SaveUpsertsOnConflict(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()
	task := sampleTask("t1")

	if err := s.Save(ctx, task); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	updated := sampleTask("t1")
	updated.Status = agent.StatusCompleted
	updated.Progress = 1.0
	updated.Error = "recorded after the fact"
	if err := s.Save(ctx, updated); err != nil {
		t.Fatalf("second Save (upsert) failed: %v", err)
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected upsert to leave exactly one row for id t1, got %d", len(all))
	}
	if all[0].Status != agent.StatusCompleted {
		t.Errorf("expected upserted status completed, got %s", all[0].Status)
	}
	if all[0].Error != "recorded after the fact" {
		t.Errorf("expected upserted error text, got %q", all[0].Error)
	}
}

func TestSQLiteStore_LoadAllReturnsEverySavedTask(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, sampleTask(id)); err != nil {
			t.Fatalf("Save(%q) failed: %v", id, err)
		}
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
}

func TestSQLiteStore_UpdateAppliesMutationAndPersists(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	updated, err := s.Update(ctx, "t1", func(tk *agent.Task) {
		tk.Status = agent.StatusRunning
		tk.Progress = 0.5
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != agent.StatusRunning || updated.Progress != 0.5 {
		t.Errorf("unexpected updated task: %+v", updated)
	}

	persisted, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if persisted.Status != agent.StatusRunning || persisted.Progress != 0.5 {
		t.Errorf("expected mutation to persist across a fresh Load, got %+v", persisted)
	}
}

func TestSQLiteStore_UpdateMissingReturnsNilNil(t *testing.T) {
	s := openTestSQLiteStore(t)
	updated, err := s.Update(context.Background(), "missing", func(tk *agent.Task) {
		tk.Status = agent.StatusRunning
	})
	if err != nil {
		t.Fatalf("expected no error updating a missing task, got %v", err)
	}
	if updated != nil {
		t.Errorf("expected nil result for a missing task, got %+v", updated)
	}
}

func TestSQLiteStore_DeleteIsIdempotent(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if loaded, err := s.Load(ctx, "t1"); err != nil || loaded != nil {
		t.Fatalf("expected task gone after delete, got loaded=%+v err=%v", loaded, err)
	}

	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("second Delete on an absent id failed: %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete on an id that never existed failed: %v", err)
	}
}

// TestSQLiteStore_ConcurrentWritesAreSerialized drives many goroutines
// through Update concurrently. SQLiteStore's write mutex must serialize
// every read-modify-write cycle so no increment is lost to a race between
// the load and the subsequent update statement.
func TestSQLiteStore_ConcurrentWritesAreSerialized(t *testing.T) {
	s := openTestSQLiteStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, sampleTask("t1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "t1", func(tk *agent.Task) {
				tk.RetryAttempt++
			})
			if err != nil {
				t.Errorf("concurrent Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	final, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if final.RetryAttempt != writers {
		t.Errorf("expected %d serialized increments, got %d (a lost update means the write mutex isn't serializing)", writers, final.RetryAttempt)
	}
}

func TestSQLiteStore_SchemaIsIdempotentAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	first, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("first OpenSQLiteStore failed: %v", err)
	}
	if err := first.Save(context.Background(), sampleTask("t1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening an existing database failed: %v", err)
	}
	defer second.Close()

	loaded, err := second.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected the previously saved task to survive a reopen")
	}
}
