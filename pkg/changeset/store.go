// Package changeset keeps proposed configuration changes in memory until
// the user approves or rejects them.
package changeset

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a proposal stays approvable.
const DefaultTTL = time.Hour

var (
	ErrNotFound = errors.New("changeset not found")
	ErrExpired  = errors.New("changeset expired")
	ErrIDInUse  = errors.New("changeset id already used")
)

// FileChange is one proposed replacement of a file or registry resource.
type FileChange struct {
	FilePath   string `json:"file_path"`
	NewContent string `json:"new_content"`
}

// Changeset is a batch of file changes awaiting approval.
type Changeset struct {
	ID          string       `json:"changeset_id"`
	FileChanges []FileChange `json:"file_changes"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// FilePaths lists the paths touched by the changeset in order.
func (c *Changeset) FilePaths() []string {
	paths := make([]string, len(c.FileChanges))
	for i, fc := range c.FileChanges {
		paths[i] = fc.FilePath
	}
	return paths
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the clock used for creation and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds pending changesets keyed by id. Ids that were claimed or
// purged are remembered for the life of the store and never handed out
// again.
type Store struct {
	mu      sync.Mutex
	sets    map[string]*Changeset
	retired map[string]error
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewStore creates an empty store. A non-positive ttl selects DefaultTTL.
func NewStore(ttl time.Duration, log *slog.Logger, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		sets:    make(map[string]*Changeset),
		retired: make(map[string]error),
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a short random changeset token.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *Store) used(id string) bool {
	_, live := s.sets[id]
	_, retired := s.retired[id]
	return live || retired
}

// Create stores a new changeset. An empty id is replaced by a fresh token.
// An id that is pending or was used before returns ErrIDInUse.
func (s *Store) Create(id string, changes []FileChange) (*Changeset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = NewID()
		for s.used(id) {
			id = NewID()
		}
	} else if s.used(id) {
		return nil, fmt.Errorf("%w: %s", ErrIDInUse, id)
	}
	now := s.now()
	cs := &Changeset{
		ID:          id,
		FileChanges: append([]FileChange(nil), changes...),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.sets[id] = cs
	s.log.Info("changeset created", "changeset_id", id, "files", len(changes), "expires_at", cs.ExpiresAt)
	return cs, nil
}

// Get returns the pending changeset with id, expired or not.
func (s *Store) Get(id string) (*Changeset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sets[id]
	return cs, ok
}

// Claim removes and returns a pending changeset in one step, so concurrent
// approvals of the same id cannot both apply it. A pending changeset is
// returned even when it has expired; callers check IsExpired. An id that
// was purged after expiring returns ErrExpired, any other unknown or
// already claimed id returns ErrNotFound.
func (s *Store) Claim(id string) (*Changeset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.sets[id]
	if !ok {
		if errors.Is(s.retired[id], ErrExpired) {
			return nil, fmt.Errorf("%w: %s", ErrExpired, id)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sets, id)
	if IsExpired(cs, s.now()) {
		s.retired[id] = ErrExpired
	} else {
		s.retired[id] = ErrNotFound
	}
	s.log.Debug("changeset claimed", "changeset_id", id)
	return cs, nil
}

// IsExpired reports whether cs is past its expiry at now.
func IsExpired(cs *Changeset, now time.Time) bool {
	return now.After(cs.ExpiresAt)
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time { return s.now() }

// Len returns the number of pending changesets.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

// PurgeExpired drops every changeset expired at now and returns how many
// were removed. Claiming a purged id later reports ErrExpired.
func (s *Store) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, cs := range s.sets {
		if IsExpired(cs, now) {
			delete(s.sets, id)
			s.retired[id] = ErrExpired
			n++
		}
	}
	if n > 0 {
		s.log.Info("purged expired changesets", "count", n)
	}
	return n
}
