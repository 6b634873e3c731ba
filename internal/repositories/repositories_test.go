package repositories

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/session"
	"github.com/desertthunder/imgx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestStateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Set And Get", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))

		if _, ok, err := repo.Get(ctx, "missing"); ok || err != nil {
			t.Fatalf("expected missing key, got %v, %v", ok, err)
		}

		if err := repo.Set(ctx, "k", "v1"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		if err := repo.Set(ctx, "k", "v2"); err != nil {
			t.Fatalf("failed to overwrite: %v", err)
		}

		got, ok, err := repo.Get(ctx, "k")
		if err != nil || !ok || got != "v2" {
			t.Errorf("expected v2, got %q, %v, %v", got, ok, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewStateRepository(setupTestDB(t))
		repo.SetMany(ctx, map[string]string{"a": "1", "b": "2", "c": "3"})

		if err := repo.Delete(ctx, "a", "b", "never-set"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}

		for key, want := range map[string]bool{"a": false, "b": false, "c": true} {
			if _, ok, _ := repo.Get(ctx, key); ok != want {
				t.Errorf("key %s: expected present=%v", key, want)
			}
		}

		if err := repo.Delete(ctx); err != nil {
			t.Errorf("expected empty delete to be a no-op, got %v", err)
		}
	})
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Round Trip", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		s := session.New("abc", session.Profile{ID: "u1", Username: "admin", Email: "a@b.c"}, session.LoginPassword, 3600)

		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if got.Credential != "abc" || got.SubjectID != "u1" || got.EmailAddress != "a@b.c" {
			t.Errorf("unexpected session %+v", got)
		}
		if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*s.ExpiresAt) {
			t.Errorf("expected expiry to survive, got %v", got.ExpiresAt)
		}
	})

	t.Run("Credential Stored Separately", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSessionRepository(db)
		repo.Save(ctx, session.New("secret", session.Profile{ID: "u1", Username: "admin"}, session.LoginAuth0, 0))

		state := NewStateRepository(db)
		token, _, _ := state.Get(ctx, KeyAuthToken)
		profile, _, _ := state.Get(ctx, KeyAuthUser)

		if token != "secret" {
			t.Errorf("expected auth_token to hold credential, got %q", token)
		}
		if profile == "" || strings.Contains(profile, "secret") {
			t.Errorf("expected auth_user without credential, got %q", profile)
		}
	})

	t.Run("Clear Removes User Record", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewSessionRepository(db)
		users := NewUserRepository(db)

		repo.Save(ctx, session.New("abc", session.Profile{ID: "u1", Username: "admin"}, session.LoginPassword, 0))
		users.Save(ctx, &models.User{ID: "u1", Username: "admin", Membership: models.DefaultMembership(time.Now())})

		if err := repo.Clear(ctx); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}

		if s, err := repo.Load(ctx); s != nil || err != nil {
			t.Errorf("expected no session, got %+v, %v", s, err)
		}
		if u, err := users.Get(ctx); u != nil || err != nil {
			t.Errorf("expected no user, got %+v, %v", u, err)
		}
	})

	t.Run("Works With Bootstrapper", func(t *testing.T) {
		db := setupTestDB(t)
		m := session.NewManager(NewSessionRepository(db), nil, nil)
		b := session.NewBootstrapper(m, NewGuardRepository(db), nil)

		m.Establish(ctx, session.New("abc", session.Profile{ID: "u1", Username: "admin"}, session.LoginPassword, 0))
		if s := b.Hydrate(ctx); !s.Authenticated() {
			t.Fatal("expected hydrated session")
		}

		m.Invalidate(ctx)
		if s := b.Hydrate(ctx); s != nil {
			t.Errorf("expected guest after invalidation, got %+v", s)
		}
	})
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(setupTestDB(t))

	if u, err := repo.Get(ctx); u != nil || err != nil {
		t.Fatalf("expected no user, got %+v, %v", u, err)
	}

	user := &models.User{ID: "u1", Username: "admin", LoggedIn: true, Membership: models.DefaultMembership(time.Now())}
	if err := repo.Save(ctx, user); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if got.ID != "u1" || got.Membership.Tier != models.TierFree || got.Membership.MaxDailyUsage != 5 {
		t.Errorf("unexpected user %+v", got)
	}

	if err := repo.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	if u, _ := repo.Get(ctx); u != nil {
		t.Error("expected user to be deleted")
	}
}

func TestGuardRepository(t *testing.T) {
	ctx := context.Background()
	key := session.NewDedupeKey("abc123", "state")

	t.Run("Lifecycle", func(t *testing.T) {
		g := NewGuardRepository(setupTestDB(t))

		if ok, err := g.Acquire(ctx, key); !ok || err != nil {
			t.Fatalf("expected first acquire to succeed, got %v, %v", ok, err)
		}
		if ok, _ := g.Acquire(ctx, key); ok {
			t.Fatal("expected second acquire to fail")
		}
		if err := g.Mark(ctx, key, session.GuardConsumed); err != nil {
			t.Fatalf("failed to mark consumed: %v", err)
		}
		if st, _ := g.State(ctx, key); st != session.GuardConsumed {
			t.Errorf("expected consumed, got %v", st)
		}
		if err := g.Release(ctx, key); err != nil {
			t.Fatal(err)
		}
		if st, _ := g.State(ctx, key); st != session.GuardAbsent {
			t.Errorf("expected absent, got %v", st)
		}
	})

	t.Run("Concurrent Acquire", func(t *testing.T) {
		g := NewGuardRepository(setupTestDB(t))

		const n = 10
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			won int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := g.Acquire(ctx, key)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if ok {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if won != 1 {
			t.Errorf("expected exactly one winner, got %d", won)
		}
	})

	t.Run("Reset And Prune", func(t *testing.T) {
		g := NewGuardRepository(setupTestDB(t))
		g.Acquire(ctx, key)
		g.Acquire(ctx, session.NewDedupeKey("other", "state"))

		if n, err := g.Prune(ctx, time.Hour); err != nil || n != 0 {
			t.Errorf("expected fresh entries to survive prune, got %d, %v", n, err)
		}
		if n, err := g.Prune(ctx, -time.Hour); err != nil || n != 2 {
			t.Errorf("expected both entries pruned, got %d, %v", n, err)
		}

		g.Acquire(ctx, key)
		if err := g.Reset(ctx); err != nil {
			t.Fatal(err)
		}
		if st, _ := g.State(ctx, key); st != session.GuardAbsent {
			t.Errorf("expected reset to clear guard, got %v", st)
		}
	})
}

func TestHistoryRepository(t *testing.T) {
	t.Run("Create And Get", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		entry := models.NewHistoryEntry("u1", models.OpConvert, "a.png", 2048)
		entry.SetResult("img-1", "https://cdn/img-1.webp", 1024)
		entry.SetDimensions(640, 480)
		entry.SetDuration(1500 * time.Millisecond)

		if err := repo.Create(entry); err != nil {
			t.Fatalf("failed to create entry: %v", err)
		}
		if entry.ID() == "" || entry.Sequence() != 1 {
			t.Errorf("expected id and first sequence, got %q, %d", entry.ID(), entry.Sequence())
		}

		got, err := repo.Get(entry.ID())
		if err != nil {
			t.Fatalf("failed to get entry: %v", err)
		}
		if got.ResultURL() != "https://cdn/img-1.webp" || got.Duration() != 1500*time.Millisecond {
			t.Errorf("unexpected entry %+v", got)
		}
		if w, h := got.Dimensions(); w != 640 || h != 480 {
			t.Errorf("expected 640x480, got %dx%d", w, h)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))

		for _, e := range []*models.HistoryEntry{
			models.NewHistoryEntry("u1", models.OpConvert, "a.png", 1),
			models.NewHistoryEntry("u1", models.OpCrop, "b.png", 1),
			models.NewHistoryEntry("u2", models.OpConvert, "c.png", 1),
		} {
			if err := repo.Create(e); err != nil {
				t.Fatal(err)
			}
		}
		failed := models.NewHistoryEntry("u1", models.OpConvert, "d.png", 1)
		failed.SetErrorMessage("unsupported format")
		repo.Create(failed)

		all, _ := repo.List(map[string]any{"subject_id": "u1"})
		if len(all) != 3 || all[0].SourceName() != "d.png" {
			t.Errorf("expected 3 entries newest first, got %d", len(all))
		}

		converts, _ := repo.List(map[string]any{"subject_id": "u1", "operation": models.OpConvert, "failed": false})
		if len(converts) != 1 || converts[0].SourceName() != "a.png" {
			t.Errorf("expected only a.png, got %d entries", len(converts))
		}

		limited, _ := repo.List(map[string]any{"limit": 2})
		if len(limited) != 2 {
			t.Errorf("expected limit to apply, got %d", len(limited))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewHistoryRepository(setupTestDB(t))
		entry := models.NewHistoryEntry("u1", models.OpResize, "a.png", 1)
		repo.Create(entry)

		if err := repo.Delete(entry.ID()); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if _, err := repo.Get(entry.ID()); err == nil {
			t.Error("expected deleted entry to be hidden")
		}
		if err := repo.Delete(entry.ID()); err == nil {
			t.Error("expected second delete to fail")
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "history")
		if err != nil {
			t.Fatalf("failed to get sequence: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for table without sequence")
	}
}
