package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode selects when commits wait for the WAL to reach disk.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs every commit.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble.
	FsyncModeNever
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = pebble.ErrNotFound

// ParseFsync maps the storage.fsync setting to a FsyncMode.
func ParseFsync(s string) (FsyncMode, error) {
	switch s {
	case "", "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return FsyncModeUnspecified, fmt.Errorf("pebble: unknown fsync mode %q", s)
}

// Op names a storage operation reported to an Observer.
type Op string

const (
	OpRead   Op = "read"
	OpCommit Op = "commit"
	OpScan   Op = "scan"
)

// Observer receives one call per completed operation.
type Observer interface {
	Observe(op Op, elapsed time.Duration, bytes int)
}

type nopObserver struct{}

func (nopObserver) Observe(Op, time.Duration, int) {}

// Options configures Open.
type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// Metrics is optional.
	Metrics Observer
}

// DB is an open store.
type DB struct {
	inner *pebble.DB
	sync  *pebble.WriteOptions
	obs   Observer
}

// Open creates or opens the database in opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}
	po := &pebble.Options{}
	sync := pebble.NoSync
	switch opts.Fsync {
	case FsyncModeAlways:
		sync = pebble.Sync
	case FsyncModeNever:
	default:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
		sync = pebble.Sync
	}
	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	obs := opts.Metrics
	if obs == nil {
		obs = nopObserver{}
	}
	return &DB{inner: inner, sync: sync, obs: obs}, nil
}

// Close closes the database. Safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch starts an atomic multi-key update.
func (db *DB) NewBatch() *pebble.Batch { return db.inner.NewBatch() }

// CommitBatch commits b with the configured fsync policy.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start, size := time.Now(), b.Len()
	err := b.Commit(db.sync)
	db.obs.Observe(OpCommit, time.Since(start), size)
	return err
}

// Set writes a single key.
func (db *DB) Set(ctx context.Context, key, value []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.CommitBatch(ctx, b)
}

// Delete removes a single key.
func (db *DB) Delete(ctx context.Context, key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(ctx, b)
}

// Get returns a copy of the value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := append([]byte(nil), val...)
	db.obs.Observe(OpRead, time.Since(start), len(out))
	return out, nil
}

// ScanPrefix calls fn for keys under prefix in ascending order, starting at
// from (or the prefix itself when from is nil), until fn returns false. Key
// and value are only valid during the call.
func (db *DB) ScanPrefix(prefix, from []byte, fn func(key, value []byte) bool) error {
	lower := prefix
	if from != nil {
		lower = from
	}
	return db.scan(lower, PrefixUpperBound(prefix), false, fn)
}

// ScanPrefixReverse is ScanPrefix in descending order over the whole prefix.
func (db *DB) ScanPrefixReverse(prefix []byte, fn func(key, value []byte) bool) error {
	return db.scan(prefix, PrefixUpperBound(prefix), true, fn)
}

func (db *DB) scan(lower, upper []byte, reverse bool, fn func(key, value []byte) bool) error {
	start := time.Now()
	iter, err := db.inner.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	read := 0
	first, next := iter.First, iter.Next
	if reverse {
		first, next = iter.Last, iter.Prev
	}
	for ok := first(); ok; ok = next() {
		v := iter.Value()
		read += len(v)
		if !fn(iter.Key(), v) {
			break
		}
	}
	err = errors.Join(iter.Error(), iter.Close())
	db.obs.Observe(OpScan, time.Since(start), read)
	return err
}

// Ping checks that the database can still serve reads.
func (db *DB) Ping() error {
	iter, err := db.inner.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	iter.First()
	return errors.Join(iter.Error(), iter.Close())
}

// PrefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
