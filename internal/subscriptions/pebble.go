package subscriptions

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	pebblestore "github.com/rzbill/ordernotify/internal/storage/pebble"
	"github.com/rzbill/ordernotify/internal/tenant"
)

// Pebble layout:
//
//	s/{tenant}/{sha256(endpoint)}   -> Subscription JSON
//	si/{id}                         -> {tenant} 0x00 {sha256(endpoint)}
//	se/{sha256(endpoint)}/{tenant}  -> id
var (
	idxByID       = []byte("si/")
	idxByEndpoint = []byte("se/")
)

// PebbleRegistry implements Registry on the embedded store.
type PebbleRegistry struct {
	db  *pebblestore.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewPebbleRegistry returns a Registry backed by db.
func NewPebbleRegistry(db *pebblestore.DB) *PebbleRegistry {
	return &PebbleRegistry{db: db, now: time.Now}
}

func endpointHash(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])
}

func recordKey(tenantID, hash string) []byte {
	return tenant.Key("s", tenantID, []byte(hash))
}

func idKey(id string) []byte {
	return append(append([]byte(nil), idxByID...), id...)
}

func endpointKey(hash, tenantID string) []byte {
	k := append(append([]byte(nil), idxByEndpoint...), hash...)
	k = append(k, '/')
	return append(k, tenantID...)
}

func (r *PebbleRegistry) get(key []byte) (Subscription, error) {
	b, err := r.db.Get(key)
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, err
	}
	var s Subscription
	if err := json.Unmarshal(b, &s); err != nil {
		return Subscription{}, err
	}
	return s, nil
}

func (r *PebbleRegistry) Upsert(ctx context.Context, tenantID, endpoint string, keys Keys, userAgent string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := endpointHash(endpoint)
	key := recordKey(tenantID, hash)
	now := r.now().UTC()

	s, err := r.get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		s = Subscription{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Endpoint:  endpoint,
			CreatedAt: now,
		}
	case err != nil:
		return "", err
	}
	s.Keys = keys
	s.UserAgent = userAgent
	s.Active = true
	s.UpdatedAt = now

	val, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	b := r.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, val, nil); err != nil {
		return "", err
	}
	ref := append(append([]byte(tenantID), 0), hash...)
	if err := b.Set(idKey(s.ID), ref, nil); err != nil {
		return "", err
	}
	if err := b.Set(endpointKey(hash, tenantID), []byte(s.ID), nil); err != nil {
		return "", err
	}
	if err := r.db.CommitBatch(ctx, b); err != nil {
		return "", err
	}
	return s.ID, nil
}

func (r *PebbleRegistry) ListActive(ctx context.Context, tenantID string) ([]Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		out    []Subscription
		decErr error
	)
	err := r.db.ScanPrefix(tenant.Key("s", tenantID), nil, func(_, v []byte) bool {
		var s Subscription
		if err := json.Unmarshal(v, &s); err != nil {
			decErr = err
			return false
		}
		if s.Active {
			out = append(out, s)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// Deactivate marks every tenant's record for endpoint inactive.
func (r *PebbleRegistry) Deactivate(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := endpointHash(endpoint)
	prefix := append(append([]byte(nil), idxByEndpoint...), hash...)
	prefix = append(prefix, '/')
	var tenants []string
	if err := r.db.ScanPrefix(prefix, nil, func(k, _ []byte) bool {
		tenants = append(tenants, string(k[len(prefix):]))
		return true
	}); err != nil {
		return err
	}
	if len(tenants) == 0 {
		return ErrNotFound
	}

	b := r.db.NewBatch()
	defer b.Close()
	now := r.now().UTC()
	for _, tid := range tenants {
		key := recordKey(tid, hash)
		s, err := r.get(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		s.Active = false
		s.UpdatedAt = now
		val, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if err := b.Set(key, val, nil); err != nil {
			return err
		}
	}
	return r.db.CommitBatch(ctx, b)
}

func (r *PebbleRegistry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, err := r.db.Get(idKey(id))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	i := bytes.IndexByte(ref, 0)
	if i < 0 {
		return errors.New("subscriptions: corrupt id index")
	}
	tenantID, hash := string(ref[:i]), string(ref[i+1:])

	b := r.db.NewBatch()
	defer b.Close()
	for _, k := range [][]byte{recordKey(tenantID, hash), idKey(id), endpointKey(hash, tenantID)} {
		if err := b.Delete(k, nil); err != nil {
			return err
		}
	}
	return r.db.CommitBatch(ctx, b)
}
