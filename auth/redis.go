// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/VA7DBI/tokenAPI/config"
	"github.com/redis/go-redis/v9"
)

// Key layout, relative to the configured prefix:
//
//	token:<id>     hash holding the record
//	value:<value>  token id, enforces unique values
//	owner:<owner>  sorted set of ids scored by create time
//	sweep          sorted set of ids scored by expire time, 0 once revoked
//	seq            id counter
const insertBody = `
if redis.call('EXISTS', KEYS[2]) == 1 then return -1 end
local id = redis.call('INCR', KEYS[1])
redis.call('HSET', ARGV[1] .. 'token:' .. id,
	'value', ARGV[2], 'owner', ARGV[3], 'create', ARGV[4], 'expire', ARGV[5],
	'access', ARGV[6], 'ip', ARGV[7], 'device', ARGV[8], 'valid', ARGV[9])
redis.call('SET', KEYS[2], id)
redis.call('ZADD', KEYS[3], ARGV[4], id)
local score = ARGV[5]
if ARGV[9] ~= '1' then score = 0 end
redis.call('ZADD', KEYS[4], score, id)
return id
`

var (
	insertScript = redis.NewScript(insertBody)

	replaceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then return -1 end
local now = tonumber(ARGV[10])
for _, old in ipairs(redis.call('ZRANGE', KEYS[3], 0, -1)) do
	local key = ARGV[1] .. 'token:' .. old
	local f = redis.call('HMGET', key, 'valid', 'expire')
	if f[1] == '1' and tonumber(f[2]) > now then
		redis.call('HSET', key, 'valid', '0')
		redis.call('ZADD', KEYS[4], 0, old)
	end
end
` + insertBody)

	updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'expire', ARGV[2], 'access', ARGV[3], 'ip', ARGV[4], 'valid', ARGV[5])
local score = ARGV[2]
if ARGV[5] ~= '1' then score = 0 end
redis.call('ZADD', KEYS[2], score, ARGV[1])
return 1
`)

	renewScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'valid', 'expire')
if f[1] ~= '1' or tonumber(f[2]) <= tonumber(ARGV[5]) then return 0 end
redis.call('HSET', KEYS[1], 'expire', ARGV[2], 'access', ARGV[3], 'ip', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

	removeScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'value', 'owner')
if not f[1] then return 0 end
redis.call('DEL', KEYS[1])
redis.call('DEL', ARGV[1] .. 'value:' .. f[1])
redis.call('ZREM', ARGV[1] .. 'owner:' .. f[2], ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

	sweepScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
for _, id in ipairs(ids) do
	local key = ARGV[1] .. 'token:' .. id
	local f = redis.call('HMGET', key, 'value', 'owner')
	if f[1] then
		redis.call('DEL', ARGV[1] .. 'value:' .. f[1])
		redis.call('ZREM', ARGV[1] .. 'owner:' .. f[2], id)
	end
	redis.call('DEL', key)
	redis.call('ZREM', KEYS[1], id)
end
return #ids
`)
)

// RedisTokenStore implements TokenStore for Redis. It is the authoritative
// store when configured, never a cache in front of another backend.
// Timestamps are kept with millisecond precision.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
	now    Clock
}

// OpenRedis connects to the server described by cfg and checks it is reachable.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Store.Redis.Host, cfg.Store.Redis.Port),
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func NewRedisTokenStore(client *redis.Client, prefix string, now Clock) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		prefix: prefix,
		now:    defaultClock(now),
	}
}

func (s *RedisTokenStore) tokenKey(id int64) string {
	return s.prefix + "token:" + strconv.FormatInt(id, 10)
}

func (s *RedisTokenStore) valueKey(value string) string { return s.prefix + "value:" + value }
func (s *RedisTokenStore) ownerKey(owner string) string { return s.prefix + "owner:" + owner }
func (s *RedisTokenStore) sweepKey() string             { return s.prefix + "sweep" }
func (s *RedisTokenStore) seqKey() string               { return s.prefix + "seq" }

func (s *RedisTokenStore) Save(ctx context.Context, token *Token) error {
	if token.ID == 0 {
		return s.insert(ctx, insertScript, token)
	}

	n, err := updateScript.Run(ctx, s.client,
		[]string{s.tokenKey(token.ID), s.sweepKey()},
		token.ID, millis(token.ExpireTime), accessField(token), token.LastIP, boolField(token.Valid),
	).Int64()
	if err != nil {
		return fmt.Errorf("updating token %d: %w", token.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisTokenStore) Renew(ctx context.Context, token *Token) error {
	n, err := renewScript.Run(ctx, s.client,
		[]string{s.tokenKey(token.ID), s.sweepKey()},
		token.ID, millis(token.ExpireTime), accessField(token), token.LastIP, millis(s.now()),
	).Int64()
	if err != nil {
		return fmt.Errorf("renewing token %d: %w", token.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisTokenStore) insert(ctx context.Context, script *redis.Script, token *Token, extra ...any) error {
	keys := []string{s.seqKey(), s.valueKey(token.Value), s.ownerKey(token.Owner), s.sweepKey()}
	args := append([]any{
		s.prefix, token.Value, token.Owner, millis(token.CreateTime), millis(token.ExpireTime),
		accessField(token), token.LastIP, token.DeviceInfo, boolField(token.Valid),
	}, extra...)

	id, err := script.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}
	if id < 0 {
		return ErrDuplicateValue
	}
	token.ID = id
	return nil
}

func (s *RedisTokenStore) Remove(ctx context.Context, token *Token) error {
	n, err := removeScript.Run(ctx, s.client,
		[]string{s.tokenKey(token.ID), s.sweepKey()}, s.prefix, token.ID).Int64()
	if err != nil {
		return fmt.Errorf("deleting token %d: %w", token.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisTokenStore) FindByValue(ctx context.Context, value string) (*Token, error) {
	id, err := s.client.Get(ctx, s.valueKey(value)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up token: %w", err)
	}

	token, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !token.Usable(s.now()) {
		return nil, ErrNotFound
	}
	return token, nil
}

func (s *RedisTokenStore) FindByID(ctx context.Context, id int64) (*Token, error) {
	fields, err := s.client.HGetAll(ctx, s.tokenKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading token %d: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeToken(id, fields)
}

func (s *RedisTokenStore) FindValidByOwner(ctx context.Context, owner string) ([]*Token, error) {
	ids, err := s.client.ZRevRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.prefix+"token:"+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}

	now := s.now()
	var tokens []*Token
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		id, err := strconv.ParseInt(ids[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad token id %q: %w", ids[i], err)
		}
		token, err := decodeToken(id, fields)
		if err != nil {
			return nil, err
		}
		if token.Usable(now) {
			tokens = append(tokens, token)
		}
	}
	// Equal scores come back in member order, which is lexical.
	sortNewestFirst(tokens)
	return tokens, nil
}

func (s *RedisTokenStore) ReplaceOwnerTokens(ctx context.Context, token *Token) error {
	return s.insert(ctx, replaceScript, token, millis(s.now()))
}

func (s *RedisTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	n, err := sweepScript.Run(ctx, s.client, []string{s.sweepKey()}, s.prefix, millis(s.now())).Int64()
	if err != nil {
		return 0, fmt.Errorf("sweeping tokens: %w", err)
	}
	return n, nil
}

func (s *RedisTokenStore) CountExpired(ctx context.Context) (int64, error) {
	upper := strconv.FormatInt(millis(s.now()), 10)
	n, err := s.client.ZCount(ctx, s.sweepKey(), "-inf", upper).Result()
	if err != nil {
		return 0, fmt.Errorf("counting tokens: %w", err)
	}
	return n, nil
}

func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}

func decodeToken(id int64, fields map[string]string) (*Token, error) {
	create, err := strconv.ParseInt(fields["create"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("token %d: bad create time: %w", id, err)
	}
	expire, err := strconv.ParseInt(fields["expire"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("token %d: bad expire time: %w", id, err)
	}

	token := &Token{
		ID:         id,
		Value:      fields["value"],
		Owner:      fields["owner"],
		CreateTime: time.UnixMilli(create),
		ExpireTime: time.UnixMilli(expire),
		LastIP:     fields["ip"],
		DeviceInfo: fields["device"],
		Valid:      fields["valid"] == "1",
	}
	if access := fields["access"]; access != "" {
		ms, err := strconv.ParseInt(access, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token %d: bad access time: %w", id, err)
		}
		at := time.UnixMilli(ms)
		token.LastAccessTime = &at
	}
	return token, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func accessField(token *Token) string {
	if token.LastAccessTime == nil {
		return ""
	}
	return strconv.FormatInt(millis(*token.LastAccessTime), 10)
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
