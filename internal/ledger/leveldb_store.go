package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/xerrors"
)

const (
	levelProviderPrefix = "provider/"
	levelConsumerPrefix = "consumer/"
	levelJobPrefix      = "job/"
	levelLastJobIDKey   = "meta/last_job_id"
	levelTotalsKey      = "meta/totals"
)

// LevelDBStore persists the ledger in a LevelDB directory. Each Update runs
// inside a leveldb.Transaction, each View on a snapshot.
type LevelDBStore struct {
	db *leveldb.DB
}

func OpenLevelDBStore(p string) (*LevelDBStore, error) {
	_, err := os.Stat(p)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := os.MkdirAll(p, 0700); err != nil {
			return nil, err
		}
	}

	db, err := leveldb.OpenFile(p, nil)
	if err != nil {
		return nil, xerrors.Errorf("opening ledger database %s: %w", p, err)
	}
	return &LevelDBStore{db: db}, nil
}

// NewLevelDBStore wraps an already opened database.
func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{db: db}
}

func (s *LevelDBStore) View(_ context.Context, fn func(tx Tx) error) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return xerrors.Errorf("taking ledger snapshot: %w", err)
	}
	defer snap.Release()
	return fn(&levelTx{r: snap})
}

func (s *LevelDBStore) Update(_ context.Context, fn func(tx Tx) error) error {
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return xerrors.Errorf("opening ledger transaction: %w", err)
	}
	if err := fn(&levelTx{r: tr, w: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		tr.Discard()
		return xerrors.Errorf("committing ledger transaction: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Reset(_ context.Context) error {
	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return xerrors.Errorf("scanning ledger for reset: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return xerrors.Errorf("resetting ledger: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

type levelReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type levelWriter interface {
	Put(key, value []byte, wo *opt.WriteOptions) error
}

type levelTx struct {
	r levelReader
	w levelWriter // nil on snapshots
}

func levelJobKey(id uint64) string {
	return fmt.Sprintf("%s%020d", levelJobPrefix, id)
}

func (tx *levelTx) get(key string, v interface{}) (bool, error) {
	data, err := tx.r.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
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

func (tx *levelTx) put(key string, v interface{}) error {
	if tx.w == nil {
		return ErrReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("encoding %s: %w", key, err)
	}
	if err := tx.w.Put([]byte(key), data, nil); err != nil {
		return xerrors.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (tx *levelTx) scan(prefix string, fn func(value []byte) error) error {
	iter := tx.r.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return xerrors.Errorf("decoding %s: %w", iter.Key(), err)
		}
	}
	return iter.Error()
}

func (tx *levelTx) Provider(address string) (Provider, bool, error) {
	var p Provider
	ok, err := tx.get(levelProviderPrefix+address, &p)
	return p, ok, err
}

func (tx *levelTx) PutProvider(p Provider) error {
	return tx.put(levelProviderPrefix+p.Address, p)
}

func (tx *levelTx) Consumer(address string) (Consumer, bool, error) {
	var c Consumer
	ok, err := tx.get(levelConsumerPrefix+address, &c)
	return c, ok, err
}

func (tx *levelTx) PutConsumer(c Consumer) error {
	return tx.put(levelConsumerPrefix+c.Address, c)
}

func (tx *levelTx) Job(id uint64) (Job, bool, error) {
	var j Job
	ok, err := tx.get(levelJobKey(id), &j)
	return j, ok, err
}

func (tx *levelTx) PutJob(job Job) error {
	return tx.put(levelJobKey(job.ID), job)
}

func (tx *levelTx) LastJobID() (uint64, error) {
	var id uint64
	_, err := tx.get(levelLastJobIDKey, &id)
	return id, err
}

func (tx *levelTx) SetLastJobID(id uint64) error {
	return tx.put(levelLastJobIDKey, id)
}

func (tx *levelTx) Totals() (Totals, error) {
	var t Totals
	_, err := tx.get(levelTotalsKey, &t)
	return t, err
}

func (tx *levelTx) SetTotals(t Totals) error {
	return tx.put(levelTotalsKey, t)
}

func (tx *levelTx) Providers() ([]Provider, error) {
	var out []Provider
	err := tx.scan(levelProviderPrefix, func(value []byte) error {
		var p Provider
		if err := json.Unmarshal(value, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func (tx *levelTx) Consumers() ([]Consumer, error) {
	var out []Consumer
	err := tx.scan(levelConsumerPrefix, func(value []byte) error {
		var c Consumer
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (tx *levelTx) Jobs() ([]Job, error) {
	var out []Job
	err := tx.scan(levelJobPrefix, func(value []byte) error {
		var j Job
		if err := json.Unmarshal(value, &j); err != nil {
			return err
		}
		out = append(out, j)
		return nil
	})
	return out, err
}
