package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "session:"
	identityKeyPrefix = "session:identity:"
)

// RedisSessionStore keeps sessions in Redis. Records outlive the inactivity window by
// the retention period so an idle client is told its session expired rather than that
// it never existed.
type RedisSessionStore struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisSessionStore constructs a RedisSessionStore.
func NewRedisSessionStore(client redis.UniversalClient, retention time.Duration) *RedisSessionStore {
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisSessionStore{client: client, retention: retention}
}

// Get loads a session by id.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Put stores the session and indexes it under its identity.
func (s *RedisSessionStore) Put(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := s.ttl(sess)
	idx := identityKey(sess.IdentityID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
		pipe.SAdd(ctx, idx, sess.ID)
		pipe.Expire(ctx, idx, ttl)
		return nil
	})
	return err
}

// Refresh rewrites the session with SET XX so a record deleted in the meantime stays
// deleted. The index entry is left alone; only its lifetime is extended.
func (s *RedisSessionStore) Refresh(ctx context.Context, sess Session) (bool, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return false, err
	}
	ttl := s.ttl(sess)
	set, err := s.client.SetArgs(ctx, sessionKey(sess.ID), data, redis.SetArgs{Mode: "XX", TTL: ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if set != "OK" {
		return false, nil
	}
	if err := s.client.Expire(ctx, identityKey(sess.IdentityID), ttl).Err(); err != nil {
		return true, err
	}
	return true, nil
}

// ttl keeps the record for the rest of its inactivity window plus retention. It is
// derived from the session's own timestamps so an injected clock stays consistent.
func (s *RedisSessionStore) ttl(sess Session) time.Duration {
	window := sess.ExpiresAt.Sub(sess.LastActivityAt)
	if window < 0 {
		window = 0
	}
	return window + s.retention
}

// Delete removes a session and its index entry.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, identityKey(sess.IdentityID), id)
		return nil
	})
	return err
}

// DeleteByIdentity removes all sessions indexed under the identity. Only the ids it
// read are unindexed, so a session started concurrently stays reachable for the next
// forced logout.
func (s *RedisSessionStore) DeleteByIdentity(ctx context.Context, identityID int64) (int, error) {
	idx := identityKey(identityID)
	ids, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
		members = append(members, id)
	}
	var removed *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, idx, members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed.Val()), nil
}

// Sweep drops index entries whose session records already expired out of Redis.
func (s *RedisSessionStore) Sweep(ctx context.Context) (int, error) {
	var (
		cursor uint64
		pruned int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, identityKeyPrefix+"*", 100).Result()
		if err != nil {
			return pruned, err
		}
		for _, idx := range keys {
			ids, err := s.client.SMembers(ctx, idx).Result()
			if err != nil {
				return pruned, err
			}
			for _, id := range ids {
				exists, err := s.client.Exists(ctx, sessionKey(id)).Result()
				if err != nil {
					return pruned, err
				}
				if exists == 0 {
					if err := s.client.SRem(ctx, idx, id).Err(); err != nil {
						return pruned, err
					}
					pruned++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return pruned, nil
		}
	}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func identityKey(identityID int64) string {
	return identityKeyPrefix + strconv.FormatInt(identityID, 10)
}
