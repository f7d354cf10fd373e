package cache

import (
	"context"
	"testing"
	"time"

	"riskai/internal/artifact"
)

// runBackends runs fn against both the in-memory and SQLite backends.
func runBackends(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Run("memory", func(t *testing.T) {
		s := NewStore(NewMemoryBackend())
		defer s.Close()
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		backend, err := OpenSQLite(t.TempDir())
		if err != nil {
			t.Fatalf("OpenSQLite error: %v", err)
		}
		s := NewStore(backend)
		defer s.Close()
		fn(t, s)
	})
}

func requirementPayload(text string, satisfied bool) artifact.Payload {
	return artifact.RequirementPayload(artifact.RequirementVerdict{
		Requirement: text,
		Satisfied:   satisfied,
	})
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		payload := artifact.RequirementPayload(artifact.RequirementVerdict{
			Requirement: "the API must validate all inputs",
			Satisfied:   true,
			CodePattern: "if err := validate(req); err != nil {",
		})

		put, err := s.Put(ctx, "req_ecffae902ceb319c1d978dade165ba04", "f343c6a461270d52314524f1fc0e580b",
			payload, []string{"satisfied", "requirement"})
		if err != nil {
			t.Fatalf("Put error: %v", err)
		}
		if put.UseCount != 1 {
			t.Errorf("UseCount after put = %d, want 1", put.UseCount)
		}
		if !put.CreatedAt.Equal(put.LastUsed) {
			t.Error("CreatedAt should equal LastUsed on insertion")
		}

		got, ok, err := s.Get(ctx, "req_ecffae902ceb319c1d978dade165ba04")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if !ok {
			t.Fatal("Expected hit after put")
		}
		if got.ContentHash != "f343c6a461270d52314524f1fc0e580b" {
			t.Errorf("ContentHash = %q", got.ContentHash)
		}
		if got.Payload.Requirement == nil || got.Payload.Requirement.Requirement != "the API must validate all inputs" {
			t.Errorf("Payload round trip failed: %+v", got.Payload)
		}
		if !got.HasTag("satisfied") || !got.HasTag("requirement") {
			t.Errorf("Tags = %v", got.Tags)
		}
	})
}

func TestStore_HitBookkeeping(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		if _, err := s.Put(ctx, "req_a", "h", requirementPayload("r", true), nil); err != nil {
			t.Fatalf("Put error: %v", err)
		}

		var last *Record
		for i := 0; i < 3; i++ {
			rec, ok, err := s.Get(ctx, "req_a")
			if err != nil || !ok {
				t.Fatalf("Get #%d: ok=%v err=%v", i, ok, err)
			}
			last = rec
		}
		if last.UseCount != 4 { // 1 on insert + 3 hits
			t.Errorf("UseCount = %d, want 4", last.UseCount)
		}
		if last.LastUsed.Before(last.CreatedAt) {
			t.Error("LastUsed should never precede CreatedAt")
		}
	})
}

func TestStore_MissOnAbsence(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		rec, ok, err := s.Get(ctx, "req_never_inserted")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if ok || rec != nil {
			t.Error("Expected miss for an absent fingerprint")
		}

		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats error: %v", err)
		}
		if stats.Records != 0 {
			t.Errorf("Miss must not create records, got %d", stats.Records)
		}
		if stats.Misses != 1 {
			t.Errorf("Misses = %d, want 1", stats.Misses)
		}
	})
}

func TestStore_OverwriteIsLastWriterWins(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		if _, err := s.Put(ctx, "req_x", "h1", requirementPayload("first", false), []string{"unsatisfied"}); err != nil {
			t.Fatalf("Put error: %v", err)
		}
		if _, err := s.Put(ctx, "req_x", "h2", requirementPayload("second", true), []string{"satisfied"}); err != nil {
			t.Fatalf("Put error: %v", err)
		}

		got, ok, err := s.Get(ctx, "req_x")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if got.Payload.Requirement.Requirement != "second" {
			t.Errorf("Payload = %q, want the second write", got.Payload.Requirement.Requirement)
		}
		if got.ContentHash != "h2" {
			t.Errorf("ContentHash = %q, want h2", got.ContentHash)
		}
		if got.UseCount != 2 { // reset to 1 by the overwrite, +1 for this hit
			t.Errorf("UseCount = %d, want 2", got.UseCount)
		}
	})
}

func TestStore_PutIfAbsentKeepsExistingRecord(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		first, _, err := s.PutIfAbsent(ctx, "req_w", "h1", requirementPayload("first", true), []string{"satisfied"})
		if err != nil {
			t.Fatalf("PutIfAbsent error: %v", err)
		}

		// A hit bumps the stored use_count to 2.
		if _, ok, err := s.Get(ctx, "req_w"); err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}

		existing, created, err := s.PutIfAbsent(ctx, "req_w", "h2", requirementPayload("second", false), []string{"unsatisfied"})
		if err != nil {
			t.Fatalf("PutIfAbsent error: %v", err)
		}
		if created {
			t.Error("Second PutIfAbsent should not create a record")
		}
		if existing.Payload.Requirement.Requirement != "first" {
			t.Errorf("Payload = %q, want the first write kept", existing.Payload.Requirement.Requirement)
		}
		if existing.ContentHash != "h1" {
			t.Errorf("ContentHash = %q, want h1", existing.ContentHash)
		}
		if existing.UseCount != 2 {
			t.Errorf("UseCount = %d, want 2 (bookkeeping kept)", existing.UseCount)
		}
		if !existing.CreatedAt.Equal(first.CreatedAt) {
			t.Error("CreatedAt must survive a repeated add")
		}

		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats error: %v", err)
		}
		if stats.Saves != 1 {
			t.Errorf("Saves = %d, want 1 (repeated add is not a save)", stats.Saves)
		}
	})
}

func TestStore_ClearEmptiesStore(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		for _, id := range []string{"req_1", "req_2", "req_3"} {
			if _, err := s.Put(ctx, id, "h", requirementPayload(id, true), nil); err != nil {
				t.Fatalf("Put error: %v", err)
			}
		}

		n, err := s.Clear(ctx)
		if err != nil {
			t.Fatalf("Clear error: %v", err)
		}
		if n != 3 {
			t.Errorf("Clear removed = %d, want 3", n)
		}

		if _, ok, _ := s.Get(ctx, "req_1"); ok {
			t.Error("Expected miss after clear")
		}

		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats error: %v", err)
		}
		if stats.Records != 0 {
			t.Errorf("Records after clear = %d, want 0", stats.Records)
		}
		if stats.Saves != 0 {
			t.Errorf("Saves after clear = %d, want 0 (counters reset)", stats.Saves)
		}
	})
}

func TestStore_LookupHashMismatchIsMiss(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		if _, err := s.Put(ctx, "req_y", "stored-hash", requirementPayload("r", true), nil); err != nil {
			t.Fatalf("Put error: %v", err)
		}

		_, ok, err := s.Lookup(ctx, "req_y", "different-hash")
		if err != nil {
			t.Fatalf("Lookup error: %v", err)
		}
		if ok {
			t.Error("Hash mismatch should be reported as a miss")
		}

		// The record itself is kept, untouched.
		got, ok, err := s.Lookup(ctx, "req_y", "stored-hash")
		if err != nil || !ok {
			t.Fatalf("Lookup: ok=%v err=%v", ok, err)
		}
		if got.UseCount != 2 { // the mismatch lookup must not have counted
			t.Errorf("UseCount = %d, want 2", got.UseCount)
		}
	})
}

func TestStore_FindByContentHash(t *testing.T) {
	runBackends(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		bug := artifact.BugPayload(artifact.Bug{
			Description: "nil map write",
			CodeSnippet: "m[k] = v",
			Severity:    "high",
		})
		if _, err := s.Put(ctx, "bug_1", "code-hash", bug, []string{"bug", "high"}); err != nil {
			t.Fatalf("Put error: %v", err)
		}
		if _, err := s.Put(ctx, "bug_2", "code-hash", bug, []string{"bug", "high"}); err != nil {
			t.Fatalf("Put error: %v", err)
		}
		// Same hash but different kind must not match.
		if _, err := s.Put(ctx, "req_z", "code-hash", requirementPayload("r", true), nil); err != nil {
			t.Fatalf("Put error: %v", err)
		}

		recs, err := s.FindByContentHash(ctx, artifact.KindBug, "code-hash")
		if err != nil {
			t.Fatalf("FindByContentHash error: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("Found %d records, want 2", len(recs))
		}
		for _, rec := range recs {
			if rec.UseCount != 2 {
				t.Errorf("UseCount = %d, want 2 (touched on find)", rec.UseCount)
			}
		}

		none, err := s.FindByContentHash(ctx, artifact.KindBug, "other-hash")
		if err != nil {
			t.Fatalf("FindByContentHash error: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("Found %d records, want 0", len(none))
		}
	})
}

func TestStore_PurgeExpired(t *testing.T) {
	backend := NewMemoryBackend()
	s := NewStore(backend, WithTTL(time.Hour))
	ctx := context.Background()

	if _, err := s.Put(ctx, "req_old", "h", requirementPayload("old", true), nil); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, err := s.Put(ctx, "req_new", "h", requirementPayload("new", true), nil); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	// Backdate one record past the TTL.
	backend.mu.Lock()
	backend.records["req_old"].LastUsed = time.Now().Add(-2 * time.Hour)
	backend.mu.Unlock()

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if n != 1 {
		t.Errorf("Purged = %d, want 1", n)
	}
	if _, ok, _ := s.Get(ctx, "req_old"); ok {
		t.Error("Stale record should be gone")
	}
	if _, ok, _ := s.Get(ctx, "req_new"); !ok {
		t.Error("Fresh record should survive the purge")
	}
}

func TestStore_PurgeDisabledWithoutTTL(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	ctx := context.Background()
	if _, err := s.Put(ctx, "req_a", "h", requirementPayload("r", true), nil); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired error: %v", err)
	}
	if n != 0 {
		t.Errorf("Purged = %d, want 0 with zero TTL", n)
	}
}

func TestStore_PutRejectsInvalidPayload(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	if _, err := s.Put(context.Background(), "bad", "h", artifact.Payload{Kind: "mystery"}, nil); err == nil {
		t.Error("Put should reject an unknown artifact kind")
	}
}

func TestStore_StatsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	s := NewStore(backend)
	if _, err := s.Put(ctx, "req_persist", "h", requirementPayload("r", true), []string{"requirement"}); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	s.Close()

	// Reopen: records survive, counters do not.
	backend2, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("OpenSQLite reopen error: %v", err)
	}
	s2 := NewStore(backend2)
	defer s2.Close()

	got, ok, err := s2.Get(ctx, "req_persist")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if got.UseCount != 2 {
		t.Errorf("UseCount after reopen = %d, want 2", got.UseCount)
	}
	stats, err := s2.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Saves != 0 || stats.Hits != 1 {
		t.Errorf("Stats after reopen = %+v, want process-scoped counters", stats)
	}
}
