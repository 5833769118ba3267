package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client), mr
}

func TestRedisStore_SaveLookupRevoke(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := "deadbeef"
	if err := store.SaveRefreshSession(ctx, hash, "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}

	userID, err := store.LookupRefreshSession(ctx, hash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}

	if err := store.RevokeRefreshSession(ctx, hash); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
}

func TestRedisStore_UnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.LookupRefreshSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "short", "user-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.LookupRefreshSession(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}
