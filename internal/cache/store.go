package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"riskai/internal/artifact"
	"riskai/internal/errors"
)

// Stats aggregates lookup counters for the current process plus the
// number of records currently stored. Counters are not persisted across
// restarts; Clear resets them.
type Stats struct {
	Hits    int `json:"cache_hits"`
	Misses  int `json:"cache_misses"`
	Saves   int `json:"cache_saves"`
	Records int `json:"records"`
}

// HitRate returns the percentage of lookups that hit, 0 when no lookups
// have happened yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Store owns all cached records and their bookkeeping. A single mutex
// serializes mutations; throughput here is bounded by LLM latency, not
// by the store.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     *zap.Logger
	ttl     time.Duration

	hits   int
	misses int
	saves  int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL sets the age (since last use) beyond which PurgeExpired drops
// records. Zero disables purging.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithLogger sets the store logger.
func WithLogger(log *zap.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore creates a Store over the given backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get looks up a record by item ID. A hit updates last_used and
// use_count durably and returns a copy; absence is (nil, false, nil),
// not an error. Storage failures surface as a STORAGE error.
func (s *Store) Get(ctx context.Context, itemID string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, itemID)
}

func (s *Store) getLocked(ctx context.Context, itemID string) (*Record, bool, error) {
	rec, err := s.backend.Get(ctx, itemID)
	if err != nil {
		return nil, false, errors.NewStorage("get", err)
	}
	if rec == nil {
		s.misses++
		return nil, false, nil
	}
	if err := s.touchLocked(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec.Clone(), true, nil
}

// Lookup is Get plus a staleness check: a stored content hash that does
// not equal contentHash is reported as a miss, and the record is left
// untouched. An empty contentHash skips the check.
func (s *Store) Lookup(ctx context.Context, itemID, contentHash string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.backend.Get(ctx, itemID)
	if err != nil {
		return nil, false, errors.NewStorage("get", err)
	}
	if rec == nil || (contentHash != "" && rec.ContentHash != contentHash) {
		s.misses++
		return nil, false, nil
	}
	if err := s.touchLocked(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec.Clone(), true, nil
}

// FindByContentHash returns all records of the given kind stored for
// contentHash, touching each. Finding none counts as a single miss;
// finding any counts as a single hit.
func (s *Store) FindByContentHash(ctx context.Context, kind artifact.Kind, contentHash string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.backend.FindByContentHash(ctx, kind, contentHash)
	if err != nil {
		return nil, errors.NewStorage("find", err)
	}
	if len(recs) == 0 {
		s.misses++
		return nil, nil
	}

	now := time.Now()
	out := make([]*Record, 0, len(recs))
	for _, rec := range recs {
		rec.LastUsed = now
		rec.UseCount++
		if err := s.backend.Upsert(ctx, rec); err != nil {
			return nil, errors.NewStorage("touch", err)
		}
		out = append(out, rec.Clone())
	}
	s.hits++
	s.log.Debug("cache hit",
		zap.String("kind", string(kind)),
		zap.String("content_hash", contentHash),
		zap.Int("records", len(out)))
	return out, nil
}

func (s *Store) touchLocked(ctx context.Context, rec *Record) error {
	rec.LastUsed = time.Now()
	rec.UseCount++
	if err := s.backend.Upsert(ctx, rec); err != nil {
		return errors.NewStorage("touch", err)
	}
	s.hits++
	s.log.Debug("cache hit", zap.String("item_id", rec.ItemID), zap.Int("use_count", rec.UseCount))
	return nil
}

// Put creates a record with use_count = 1 and created_at = last_used =
// now. An existing record at the same item ID is overwritten
// (last-writer-wins, no merge). Returns a copy of the stored record.
func (s *Store) Put(ctx context.Context, itemID, contentHash string, payload artifact.Payload, tags []string) (*Record, error) {
	if itemID == "" {
		return nil, errors.NewInvalidInput("item_id is empty")
	}
	if err := payload.Validate(); err != nil {
		return nil, errors.NewInvalidInput(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(ctx, itemID, contentHash, payload, tags)
}

// PutIfAbsent stores a record only when no record exists for the item
// ID. An existing record is returned untouched, keeping its created_at
// and use_count. The bool reports whether a new record was created.
func (s *Store) PutIfAbsent(ctx context.Context, itemID, contentHash string, payload artifact.Payload, tags []string) (*Record, bool, error) {
	if itemID == "" {
		return nil, false, errors.NewInvalidInput("item_id is empty")
	}
	if err := payload.Validate(); err != nil {
		return nil, false, errors.NewInvalidInput(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.backend.Get(ctx, itemID)
	if err != nil {
		return nil, false, errors.NewStorage("get", err)
	}
	if existing != nil {
		return existing.Clone(), false, nil
	}

	rec, err := s.putLocked(ctx, itemID, contentHash, payload, tags)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *Store) putLocked(ctx context.Context, itemID, contentHash string, payload artifact.Payload, tags []string) (*Record, error) {
	now := time.Now()
	rec := &Record{
		ItemID:      itemID,
		ContentHash: contentHash,
		CreatedAt:   now,
		LastUsed:    now,
		UseCount:    1,
		Tags:        append([]string(nil), tags...),
		Payload:     payload,
	}
	if err := s.backend.Upsert(ctx, rec); err != nil {
		return nil, errors.NewStorage("put", err)
	}
	s.saves++
	s.log.Debug("cache save", zap.String("item_id", itemID), zap.Strings("tags", rec.Tags))
	return rec.Clone(), nil
}

// Clear removes all records unconditionally and resets the counters.
// Returns the number of records removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.backend.DeleteAll(ctx)
	if err != nil {
		return 0, errors.NewStorage("clear", err)
	}
	s.hits, s.misses, s.saves = 0, 0, 0
	s.log.Info("cache cleared", zap.Int("removed", n))
	return n, nil
}

// PurgeExpired drops records whose last_used is older than the
// configured TTL. A zero TTL makes this a no-op.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	n, err := s.backend.DeleteLastUsedBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.NewStorage("purge", err)
	}
	if n > 0 {
		s.log.Info("purged expired cache records", zap.Int("removed", n))
	}
	return n, nil
}

// Stats returns the current counters and record count.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.backend.Count(ctx)
	if err != nil {
		return Stats{}, errors.NewStorage("count", err)
	}
	return Stats{Hits: s.hits, Misses: s.misses, Saves: s.saves, Records: n}, nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
