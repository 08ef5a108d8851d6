package session

import (
	"errors"
	"testing"
	"time"

	"github.com/splatview/splatview/internal/splat"
	"github.com/splatview/splatview/internal/testutil"
	"github.com/splatview/splatview/internal/timeutil"
)

func testSession(t *testing.T, n int) *Session {
	t.Helper()
	return &Session{
		Meta: splat.SceneMetadata{
			Width:         640,
			Height:        480,
			FocalLengthPx: 1193.0,
			ColorSpace:    "srgb",
		},
		PLYPath:   "artifacts/ply/gaussians_x.ply",
		Gaussians: testutil.Gaussians(t, n),
	}
}

func TestPutGeneratesID(t *testing.T) {
	store := NewStore(timeutil.NewMockClock(time.Unix(1000, 0)), 0)

	sess := store.Put(testSession(t, 8))
	if sess.ID == "" {
		t.Fatal("Put left ID empty")
	}
	if sess.Count != 8 {
		t.Errorf("Count = %d, want 8", sess.Count)
	}
	if sess.CreatedAt != time.Unix(1000, 0) {
		t.Errorf("CreatedAt = %v", sess.CreatedAt)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sess {
		t.Error("Get returned a different session")
	}
}

func TestPutKeepsExplicitID(t *testing.T) {
	store := NewStore(timeutil.NewMockClock(time.Unix(1000, 0)), 0)

	sess := testSession(t, 2)
	sess.ID = "fixed-id"
	store.Put(sess)

	if _, err := store.Get("fixed-id"); err != nil {
		t.Errorf("Get(fixed-id): %v", err)
	}
}

func TestGetUnknownID(t *testing.T) {
	store := NewStore(timeutil.NewMockClock(time.Unix(1000, 0)), 0)
	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(timeutil.NewMockClock(time.Unix(1000, 0)), 0)

	var evicted []*Session
	store.OnEvict(func(s *Session) { evicted = append(evicted, s) })

	sess := store.Put(testSession(t, 4))
	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Error("session still retrievable after Delete")
	}
	if len(evicted) != 1 || evicted[0].ID != sess.ID {
		t.Errorf("eviction hook saw %v", evicted)
	}

	if err := store.Delete(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: err = %v, want ErrNotFound", err)
	}
	if len(evicted) != 1 {
		t.Error("hook ran for a missing session")
	}
}

func TestListNewestFirst(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	store := NewStore(clock, 0)

	a := store.Put(testSession(t, 1))
	clock.Advance(time.Minute)
	b := store.Put(testSession(t, 2))
	clock.Advance(time.Minute)
	c := store.Put(testSession(t, 3))

	got := store.List()
	if len(got) != 3 {
		t.Fatalf("List() returned %d sessions, want 3", len(got))
	}
	if got[0].ID != c.ID || got[1].ID != b.ID || got[2].ID != a.ID {
		t.Errorf("order = %s, %s, %s; want newest first", got[0].ID, got[1].ID, got[2].ID)
	}
	for _, s := range got {
		if s.Gaussians != nil {
			t.Error("List snapshot carries Gaussian data")
		}
	}

	// snapshots are copies: the stored session keeps its primitives
	if live, _ := store.Get(a.ID); live.Gaussians == nil {
		t.Error("stored session lost its Gaussian data")
	}
}

func TestEvictExpired(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	store := NewStore(clock, time.Hour)

	var evicted []string
	store.OnEvict(func(s *Session) { evicted = append(evicted, s.ID) })

	old := store.Put(testSession(t, 1))
	clock.Advance(30 * time.Minute)
	fresh := store.Put(testSession(t, 2))

	clock.Advance(31 * time.Minute) // old is now 61m idle, fresh 31m

	if n := store.EvictExpired(); n != 1 {
		t.Fatalf("EvictExpired() = %d, want 1", n)
	}
	if _, err := store.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("idle session survived eviction")
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Errorf("fresh session evicted: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != old.ID {
		t.Errorf("hook saw %v, want [%s]", evicted, old.ID)
	}
}

func TestGetExtendsLifetime(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	store := NewStore(clock, time.Hour)

	sess := store.Put(testSession(t, 1))

	clock.Advance(50 * time.Minute)
	if _, err := store.Get(sess.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	clock.Advance(50 * time.Minute) // 100m since Put, 50m since Get
	if n := store.EvictExpired(); n != 0 {
		t.Errorf("EvictExpired() = %d, want 0 after recent access", n)
	}
}

func TestZeroTTLDisablesEviction(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	store := NewStore(clock, 0)

	store.Put(testSession(t, 1))
	clock.Advance(1000 * time.Hour)

	if n := store.EvictExpired(); n != 0 {
		t.Errorf("EvictExpired() = %d, want 0 with ttl disabled", n)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}
