package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/Keksclan/ipcache/model"
	"github.com/sirupsen/logrus"
)

// ErrInvalidTTL is returned by [New] when the TTL is not a positive duration
// that can be added to the current time without overflowing.
var ErrInvalidTTL = errors.New("cache: invalid ttl")

// Store is the in-memory [Cache]. All methods are safe for concurrent use.
type Store struct {
	ttl      time.Duration
	now      func() time.Time
	recorder Recorder
	log      logrus.FieldLogger

	ip      *space[*model.IPResult]
	asn     *space[*model.ASNResult]
	generic *space[any]
}

var _ Cache = (*Store)(nil)

// New creates a Store whose entries go stale ttl after they are written.
func New(ttl time.Duration, opts ...Option) (*Store, error) {
	cfg := config{
		now:      time.Now,
		recorder: nopRecorder{},
		log:      discardLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	if ttl <= 0 {
		return nil, fmt.Errorf("%w: %s is not positive", ErrInvalidTTL, ttl)
	}
	if now := cfg.now(); !now.Add(ttl).After(now) {
		return nil, fmt.Errorf("%w: %s overflows the clock", ErrInvalidTTL, ttl)
	}

	return &Store{
		ttl:      ttl,
		now:      cfg.now,
		recorder: cfg.recorder,
		log:      cfg.log,
		ip:       newSpace[*model.IPResult](),
		asn:      newSpace[*model.ASNResult](),
		generic:  newSpace[any](),
	}, nil
}

// TTL returns the time-to-live applied to every entry.
func (s *Store) TTL() time.Duration { return s.ttl }

// GetIP returns the fresh IP result cached under ip.
func (s *Store) GetIP(ip string) (*model.IPResult, bool) {
	return get(s, s.ip, SpaceIP, ip)
}

// SetIP caches r under ip, replacing any previous entry.
func (s *Store) SetIP(ip string, r *model.IPResult) bool {
	return set(s, s.ip, SpaceIP, ip, r)
}

// GetASN returns the fresh ASN result cached under asn.
func (s *Store) GetASN(asn string) (*model.ASNResult, bool) {
	return get(s, s.asn, SpaceASN, asn)
}

// SetASN caches r under asn, replacing any previous entry.
func (s *Store) SetASN(asn string, r *model.ASNResult) bool {
	return set(s, s.asn, SpaceASN, asn, r)
}

// Get returns the fresh value cached under key in the generic space.
func (s *Store) Get(key string) (any, bool) {
	return get(s, s.generic, SpaceGeneric, key)
}

// Set caches val under key in the generic space.
func (s *Store) Set(key string, val any) bool {
	return set(s, s.generic, SpaceGeneric, key, val)
}

// Clear drops every entry from all three key spaces.
func (s *Store) Clear() bool {
	s.ip.clear()
	s.asn.clear()
	s.generic.clear()
	s.recorder.Clear()
	s.log.Debug("cache cleared")
	return true
}

// Len returns the number of entries held across all key spaces. Stale
// entries are counted until they are overwritten or cleared.
func (s *Store) Len() int {
	return s.ip.len() + s.asn.len() + s.generic.len()
}

func get[T any](s *Store, sp *space[T], name Space, key string) (T, bool) {
	var zero T
	e, ok := sp.lookup(key)
	if !ok {
		s.recorder.Miss(name)
		return zero, false
	}
	if e.stale(s.now(), s.ttl) {
		s.recorder.Stale(name)
		s.log.WithFields(logrus.Fields{"space": name, "key": key}).Debug("stale cache entry")
		return zero, false
	}
	s.recorder.Hit(name)
	return e.value, true
}

func set[T any](s *Store, sp *space[T], name Space, key string, val T) bool {
	sp.store(key, val, s.now())
	s.recorder.Set(name)
	return true
}
