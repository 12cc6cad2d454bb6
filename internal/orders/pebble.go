package orders

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	pebblestore "github.com/rzbill/ordernotify/internal/storage/pebble"
	"github.com/rzbill/ordernotify/internal/tenant"
)

// PebbleStore is the embedded Store. Ids are assigned per tenant starting at 1.
type PebbleStore struct {
	db *pebblestore.DB

	mu      sync.Mutex
	lastIDs map[string]int64
	now     func() time.Time
}

// NewPebbleStore returns a Store backed by db.
func NewPebbleStore(db *pebblestore.DB) *PebbleStore {
	return &PebbleStore{db: db, lastIDs: make(map[string]int64), now: time.Now}
}

func orderPrefix(tenantID string) []byte {
	return tenant.Key("t", tenantID, []byte("o/"))
}

func orderKey(tenantID string, id int64) []byte {
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], uint64(id))
	return tenant.Key("t", tenantID, []byte("o/"), be[:])
}

func metaKey(tenantID string) []byte {
	return tenant.Key("t", tenantID, []byte("m"))
}

// lastID must be called with s.mu held.
func (s *PebbleStore) lastID(tenantID string) (int64, error) {
	if id, ok := s.lastIDs[tenantID]; ok {
		return id, nil
	}
	var id int64
	b, err := s.db.Get(metaKey(tenantID))
	switch {
	case err == nil && len(b) >= 8:
		id = int64(binary.BigEndian.Uint64(b[:8]))
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return 0, err
	}
	s.lastIDs[tenantID] = id
	return id, nil
}

func (s *PebbleStore) Create(ctx context.Context, o Order) (Order, error) {
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastID(o.TenantID)
	if err != nil {
		return Order{}, err
	}
	o.ID = last + 1
	if o.OrderNumber == "" {
		o.OrderNumber = strconv.FormatInt(o.ID, 10)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
	}
	val, err := json.Marshal(o)
	if err != nil {
		return Order{}, err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(orderKey(o.TenantID, o.ID), val, nil); err != nil {
		return Order{}, err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], uint64(o.ID))
	if err := b.Set(metaKey(o.TenantID), meta[:], nil); err != nil {
		return Order{}, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return Order{}, err
	}
	s.lastIDs[o.TenantID] = o.ID
	return o, nil
}

func (s *PebbleStore) ListSince(ctx context.Context, tenantID string, cursor int64, limit int) ([]SummaryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if cursor < 0 {
		cursor = 0
	}
	var (
		out    []SummaryEvent
		decErr error
	)
	err := s.db.ScanPrefix(orderPrefix(tenantID), orderKey(tenantID, cursor+1), func(_, v []byte) bool {
		var o Order
		if err := json.Unmarshal(v, &o); err != nil {
			decErr = err
			return false
		}
		if !o.Status.Terminal() {
			out = append(out, o.Summary())
		}
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, decErr
	}
	return out, nil
}

func (s *PebbleStore) MaxActiveID(ctx context.Context, tenantID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var (
		id     int64
		decErr error
	)
	err := s.db.ScanPrefixReverse(orderPrefix(tenantID), func(_, v []byte) bool {
		var o Order
		if decErr = json.Unmarshal(v, &o); decErr != nil {
			return false
		}
		if o.Status.Terminal() {
			return true
		}
		id = o.ID
		return false
	})
	if err != nil {
		return 0, err
	}
	return id, decErr
}
