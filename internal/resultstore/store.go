// Package resultstore keeps completed analysis summaries on disk so the CLI
// can answer "what did the last run find" without re-running the engine.
// Summaries carry only the transport-safe path projections, never engine
// state.
package resultstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/paths"
)

// Increment when the Summary layout changes.
const schemaVersion uint16 = 1

// ErrNotFound reports that no summary is cached for an entry path.
var ErrNotFound = errors.New("no cached summary")

// Digest is a sha256 value.
type Digest [sha256.Size]byte

// Summary is the cached outcome of one completed analysis run.
type Summary struct {
	Schema  uint16
	RunID   string
	Entry   string
	Root    string
	Options Digest

	Paths   []paths.Props
	Success int
	Stopped int
	Failed  int

	Duration time.Duration
	When     time.Time
}

// Store is an on-disk summary cache keyed by entry path digest.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes a store rooted at dir, creating it as needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// OpenDefault opens the store at the user cache location.
func OpenDefault() (*Store, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(base, "pytea", "runs"))
}

// DigestOptions fingerprints the merged options so a cached summary can be
// told apart from one produced under a different configuration.
func DigestOptions(opts config.Options) Digest {
	payload, err := json.Marshal(opts)
	if err != nil {
		return Digest{}
	}
	return sha256.Sum256(payload)
}

// Save writes a summary atomically. Nil stores discard silently so the
// session's best-effort write needs no guard.
func (s *Store) Save(sum *Summary) error {
	if s == nil || sum == nil {
		return nil
	}
	sum.Schema = schemaVersion
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.pathFor(sum.Entry)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := msgpack.NewEncoder(tmp).Encode(sum); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// Load reads the summary cached for an entry path. Schema mismatches read
// as ErrNotFound: an old cache is the same as no cache.
func (s *Store) Load(entry string) (*Summary, error) {
	if s == nil {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.pathFor(entry))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	var sum Summary
	if err := msgpack.NewDecoder(f).Decode(&sum); err != nil {
		return nil, err
	}
	if sum.Schema != schemaVersion {
		return nil, ErrNotFound
	}
	return &sum, nil
}

// Drop removes every cached summary.
func (s *Store) Drop() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(s.dir, old); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}

func (s *Store) pathFor(entry string) string {
	sum := sha256.Sum256([]byte(config.CanonicalPath(entry)))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".mp")
}
