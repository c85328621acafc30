package ledger

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"
)

const DefaultRedisKeyPrefix = "MARKET:"

// RedisStore keeps the ledger in Redis. Keys read by an Update are WATCHed
// and the staged writes are applied with MULTI/EXEC, so a concurrent writer
// on the same keys aborts the transaction with ErrConflict.
type RedisStore struct {
	pool   *redis.Pool
	prefix string
}

func NewRedisPool(url string, password string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,
		MaxActive:   0,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			if password != "" {
				return redis.DialURL(url, redis.DialPassword(password))
			}
			return redis.DialURL(url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewRedisStore(pool *redis.Pool, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{pool: pool, prefix: prefix}
}

func (s *RedisStore) View(_ context.Context, fn func(tx Tx) error) error {
	conn := s.pool.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return xerrors.Errorf("getting redis connection: %w", err)
	}
	return fn(&redisTx{conn: conn, prefix: s.prefix})
}

func (s *RedisStore) Update(_ context.Context, fn func(tx Tx) error) error {
	conn := s.pool.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return xerrors.Errorf("getting redis connection: %w", err)
	}

	tx := &redisTx{conn: conn, prefix: s.prefix, staged: newOverlay()}
	if err := fn(tx); err != nil {
		conn.Do("UNWATCH")
		return err
	}
	if tx.staged.empty() {
		conn.Do("UNWATCH")
		return nil
	}
	return tx.commit()
}

func (s *RedisStore) Reset(_ context.Context) error {
	conn := s.pool.Get()
	defer conn.Close()
	if err := conn.Err(); err != nil {
		return xerrors.Errorf("getting redis connection: %w", err)
	}

	keys, err := redis.Strings(conn.Do("KEYS", s.prefix+"*"))
	if err != nil {
		return xerrors.Errorf("listing ledger keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if _, err := conn.Do("DEL", redis.Args{}.AddFlat(keys)...); err != nil {
		return xerrors.Errorf("resetting ledger: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}

type redisTx struct {
	conn   redis.Conn
	prefix string
	staged *overlay // nil in read-only transactions
}

func (tx *redisTx) providerKey(address string) string {
	return tx.prefix + "provider:" + address
}

func (tx *redisTx) consumerKey(address string) string {
	return tx.prefix + "consumer:" + address
}

func (tx *redisTx) jobKey(id uint64) string {
	return tx.prefix + "job:" + strconv.FormatUint(id, 10)
}

func (tx *redisTx) lastJobIDKey() string {
	return tx.prefix + "meta:last_job_id"
}

func (tx *redisTx) totalsKey() string {
	return tx.prefix + "meta:totals"
}

func (tx *redisTx) get(key string, v interface{}) (bool, error) {
	if tx.staged != nil {
		if _, err := tx.conn.Do("WATCH", key); err != nil {
			return false, xerrors.Errorf("watching %s: %w", key, err)
		}
	}
	data, err := redis.Bytes(tx.conn.Do("GET", key))
	if err == redis.ErrNil {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, xerrors.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (tx *redisTx) scan(pattern string, fn func(value []byte) error) error {
	keys, err := redis.Strings(tx.conn.Do("KEYS", pattern))
	if err != nil {
		return xerrors.Errorf("listing %s: %w", pattern, err)
	}
	for _, key := range keys {
		data, err := redis.Bytes(tx.conn.Do("GET", key))
		if err == redis.ErrNil {
			continue
		}
		if err != nil {
			return xerrors.Errorf("reading %s: %w", key, err)
		}
		if err := fn(data); err != nil {
			return xerrors.Errorf("decoding %s: %w", key, err)
		}
	}
	return nil
}

func (tx *redisTx) commit() error {
	type write struct {
		key   string
		value interface{}
	}
	var writes []write
	for addr, p := range tx.staged.providers {
		writes = append(writes, write{tx.providerKey(addr), p})
	}
	for addr, c := range tx.staged.consumers {
		writes = append(writes, write{tx.consumerKey(addr), c})
	}
	for id, j := range tx.staged.jobs {
		writes = append(writes, write{tx.jobKey(id), j})
	}
	if tx.staged.lastJobID != nil {
		writes = append(writes, write{tx.lastJobIDKey(), *tx.staged.lastJobID})
	}
	if tx.staged.totals != nil {
		writes = append(writes, write{tx.totalsKey(), *tx.staged.totals})
	}

	if err := tx.conn.Send("MULTI"); err != nil {
		return xerrors.Errorf("starting redis transaction: %w", err)
	}
	for _, w := range writes {
		data, err := json.Marshal(w.value)
		if err != nil {
			tx.conn.Do("DISCARD")
			return xerrors.Errorf("encoding %s: %w", w.key, err)
		}
		if err := tx.conn.Send("SET", w.key, data); err != nil {
			tx.conn.Do("DISCARD")
			return xerrors.Errorf("queueing %s: %w", w.key, err)
		}
	}
	_, err := redis.Values(tx.conn.Do("EXEC"))
	if err == redis.ErrNil {
		return ErrConflict
	}
	if err != nil {
		return xerrors.Errorf("committing redis transaction: %w", err)
	}
	return nil
}

func (tx *redisTx) Provider(address string) (Provider, bool, error) {
	if tx.staged != nil {
		if p, ok := tx.staged.providers[address]; ok {
			return p, true, nil
		}
	}
	var p Provider
	ok, err := tx.get(tx.providerKey(address), &p)
	return p, ok, err
}

func (tx *redisTx) PutProvider(p Provider) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.providers[p.Address] = p
	return nil
}

func (tx *redisTx) Consumer(address string) (Consumer, bool, error) {
	if tx.staged != nil {
		if c, ok := tx.staged.consumers[address]; ok {
			return c, true, nil
		}
	}
	var c Consumer
	ok, err := tx.get(tx.consumerKey(address), &c)
	return c, ok, err
}

func (tx *redisTx) PutConsumer(c Consumer) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.consumers[c.Address] = c
	return nil
}

func (tx *redisTx) Job(id uint64) (Job, bool, error) {
	if tx.staged != nil {
		if j, ok := tx.staged.jobs[id]; ok {
			return j, true, nil
		}
	}
	var j Job
	ok, err := tx.get(tx.jobKey(id), &j)
	return j, ok, err
}

func (tx *redisTx) PutJob(job Job) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.jobs[job.ID] = job
	return nil
}

func (tx *redisTx) LastJobID() (uint64, error) {
	if tx.staged != nil && tx.staged.lastJobID != nil {
		return *tx.staged.lastJobID, nil
	}
	var id uint64
	_, err := tx.get(tx.lastJobIDKey(), &id)
	return id, err
}

func (tx *redisTx) SetLastJobID(id uint64) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.setLastJobID(id)
	return nil
}

func (tx *redisTx) Totals() (Totals, error) {
	if tx.staged != nil && tx.staged.totals != nil {
		return *tx.staged.totals, nil
	}
	var t Totals
	_, err := tx.get(tx.totalsKey(), &t)
	return t, err
}

func (tx *redisTx) SetTotals(t Totals) error {
	if tx.staged == nil {
		return ErrReadOnly
	}
	tx.staged.setTotals(t)
	return nil
}

func (tx *redisTx) Providers() ([]Provider, error) {
	var base []Provider
	err := tx.scan(tx.providerKey("*"), func(value []byte) error {
		var p Provider
		if err := json.Unmarshal(value, &p); err != nil {
			return err
		}
		base = append(base, p)
		return nil
	})
	if err != nil || tx.staged == nil {
		return base, err
	}
	return tx.staged.mergeProviders(base), nil
}

func (tx *redisTx) Consumers() ([]Consumer, error) {
	var base []Consumer
	err := tx.scan(tx.consumerKey("*"), func(value []byte) error {
		var c Consumer
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		base = append(base, c)
		return nil
	})
	if err != nil || tx.staged == nil {
		return base, err
	}
	return tx.staged.mergeConsumers(base), nil
}

func (tx *redisTx) Jobs() ([]Job, error) {
	var base []Job
	err := tx.scan(tx.prefix+"job:*", func(value []byte) error {
		var j Job
		if err := json.Unmarshal(value, &j); err != nil {
			return err
		}
		base = append(base, j)
		return nil
	})
	if err != nil || tx.staged == nil {
		return base, err
	}
	return tx.staged.mergeJobs(base), nil
}
