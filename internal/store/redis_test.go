package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// setupRedisStore connects to the Redis named by HILO_TEST_REDIS_ADDR and
// skips the test when it is unset.
func setupRedisStore(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("HILO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HILO_TEST_REDIS_ADDR not set")
	}
	st, err := DialRedis(context.Background(), addr, os.Getenv("HILO_TEST_REDIS_PASSWORD"), 15)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() {
		st.rdb.FlushDB(context.Background())
		st.Close()
	})
	st.rdb.FlushDB(context.Background())
	return st
}

func TestRedisRoomLifecycle(t *testing.T) {
	st := setupRedisStore(t)
	ctx := context.Background()

	id := uuid.New().String()
	r := testRoom(id, "REDISA", "Redis Pit")
	if err := st.Create(ctx, r); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := st.Create(ctx, testRoom(uuid.New().String(), "REDISA", "Other")); !errors.Is(err, ErrRoomExists) {
		t.Errorf("expected ErrRoomExists for duplicate code, got %v", err)
	}
	if err := st.Create(ctx, testRoom(uuid.New().String(), "REDISB", "redis pit")); !errors.Is(err, ErrRoomExists) {
		t.Errorf("expected ErrRoomExists for duplicate name, got %v", err)
	}
	// The failed name claim must not leave its code behind
	if ok, _ := st.CodeExists(ctx, "REDISB"); ok {
		t.Error("expected REDISB released after failed create")
	}

	byCode, err := st.Load(ctx, "redisa")
	if err != nil {
		t.Fatalf("Load by code failed: %v", err)
	}
	if byCode.ID != id || byCode.Game == nil || byCode.Game.Host != "alice" {
		t.Errorf("unexpected room: %+v", byCode)
	}

	byCode.MaxPlayers = 4
	if err := st.Save(ctx, byCode); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rooms, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rooms) != 1 || rooms[0].MaxPlayers != 4 {
		t.Errorf("unexpected list: %+v", rooms)
	}

	if err := st.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := st.Load(ctx, id); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound after delete, got %v", err)
	}
	if ok, _ := st.NameExists(ctx, "Redis Pit"); ok {
		t.Error("expected name index removed")
	}
	if err := st.Save(ctx, byCode); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound saving deleted room, got %v", err)
	}
}

func TestNewRedisReportsUnreachableServer(t *testing.T) {
	st := NewRedis(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := st.Ping(ctx); err == nil {
		t.Error("expected ping to fail against a closed port")
	}
	if _, err := st.Load(ctx, "ABCDEF"); err == nil || errors.Is(err, ErrRoomNotFound) {
		t.Errorf("expected a connection error rather than not-found, got %v", err)
	}
}
