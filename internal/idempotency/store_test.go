package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := Key(7, "abc")

	if _, reserved, err := s.Reserve(ctx, key, time.Minute); err != nil || !reserved {
		t.Fatalf("expected first reserve to succeed, got %v %v", reserved, err)
	}

	rec, reserved, err := s.Reserve(ctx, key, time.Minute)
	if err != nil || reserved || rec.State != StatePending {
		t.Fatalf("expected pending record, got %+v %v %v", rec, reserved, err)
	}

	if err := s.Complete(ctx, key, 201, []byte(`{"ok":true}`), time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rec, reserved, err = s.Reserve(ctx, key, time.Minute)
	if err != nil || reserved {
		t.Fatalf("expected stored record, got %v %v", reserved, err)
	}
	if rec.State != StateDone || rec.StatusCode != 201 || string(rec.Body) != `{"ok":true}` {
		t.Fatalf("unexpected record: %+v", rec)
	}

	other := Key(7, "released")
	if _, reserved, _ := s.Reserve(ctx, other, time.Minute); !reserved {
		t.Fatalf("expected reserve")
	}
	if err := s.Release(ctx, other); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, reserved, _ := s.Reserve(ctx, other, time.Minute); !reserved {
		t.Fatalf("expected key to be reusable after release")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if _, reserved, _ := s.Reserve(ctx, "k", time.Second); !reserved {
		t.Fatalf("expected reserve")
	}
	now = now.Add(2 * time.Second)
	if _, reserved, _ := s.Reserve(ctx, "k", time.Second); !reserved {
		t.Fatalf("expected expired key to be reserved again")
	}
}

func TestMemoryStoreSweepsExpiredKeys(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if _, reserved, _ := s.Reserve(ctx, k, time.Second); !reserved {
			t.Fatalf("expected reserve %s", k)
		}
	}
	if err := s.Complete(ctx, "c", 201, []byte("{}"), time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, reserved, _ := s.Reserve(ctx, "d", time.Second); !reserved {
		t.Fatalf("expected reserve d")
	}
	if n := s.Len(); n != 2 {
		t.Fatalf("expected expired keys to be removed, got %d records", n)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedisStore(client))

	if ttl := mr.TTL(Key(7, "abc")); ttl <= 0 {
		t.Fatalf("expected ttl on stored key, got %v", ttl)
	}
}

func TestKeyIsScopedPerUser(t *testing.T) {
	if Key(1, "x") == Key(2, "x") {
		t.Fatalf("expected different keys for different users")
	}
}
