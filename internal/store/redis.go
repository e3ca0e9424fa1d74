package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const roomSetKey = "rooms"

func roomKey(id string) string   { return "room:" + id }
func codeKey(code string) string { return "room:code:" + strings.ToUpper(code) }
func nameKey(name string) string { return "room:name:" + strings.ToLower(name) }

// Redis keeps each room as a JSON document under room:<id>, with code and
// name indexes pointing back at the ID.
type Redis struct {
	rdb *redis.Client
}

// NewRedis wraps an existing client. The caller owns its configuration;
// Close closes it.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return NewRedis(rdb), nil
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Create claims the code and name indexes before writing the document.
// A lost claim releases whatever was already taken.
func (s *Redis) Create(ctx context.Context, r *Room) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, codeKey(r.Code), r.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomExists
	}
	ok, err = s.rdb.SetNX(ctx, nameKey(r.Name), r.ID, 0).Result()
	if err != nil || !ok {
		s.rdb.Del(ctx, codeKey(r.Code))
		if err != nil {
			return err
		}
		return ErrRoomExists
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(r.ID), doc, 0)
		pipe.SAdd(ctx, roomSetKey, r.ID)
		return nil
	})
	return err
}

func (s *Redis) Load(ctx context.Context, idOrCode string) (*Room, error) {
	r, err := s.get(ctx, idOrCode)
	if !errors.Is(err, ErrRoomNotFound) {
		return r, err
	}
	id, err := s.rdb.Get(ctx, codeKey(idOrCode)).Result()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.get(ctx, id)
}

// Save overwrites the document only if the room still exists.
func (s *Redis) Save(ctx context.Context, r *Room) error {
	r.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	ok, err := s.rdb.SetXX(ctx, roomKey(r.ID), doc, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomNotFound
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	r, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(r.ID), codeKey(r.Code), nameKey(r.Name))
		pipe.SRem(ctx, roomSetKey, r.ID)
		return nil
	})
	return err
}

func (s *Redis) CodeExists(ctx context.Context, code string) (bool, error) {
	n, err := s.rdb.Exists(ctx, codeKey(code)).Result()
	return n > 0, err
}

func (s *Redis) NameExists(ctx context.Context, name string) (bool, error) {
	n, err := s.rdb.Exists(ctx, nameKey(name)).Result()
	return n > 0, err
}

// List returns all rooms, oldest first. IDs left in the set without a
// document are skipped.
func (s *Redis) List(ctx context.Context) ([]*Room, error) {
	ids, err := s.rdb.SMembers(ctx, roomSetKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roomKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	rooms := make([]*Room, 0, len(vals))
	for _, v := range vals {
		doc, ok := v.(string)
		if !ok {
			continue
		}
		var r Room
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decode room: %w", err)
		}
		rooms = append(rooms, &r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *Redis) get(ctx context.Context, id string) (*Room, error) {
	doc, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Room
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return &r, nil
}
