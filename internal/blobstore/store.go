// Package blobstore keeps uploaded media for the ledger node in Badger.
//
// Blobs are stored under a random name that keeps the original file
// extension, mirroring a plain upload directory. An empty data directory
// yields an in-memory store.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when no blob has the given name.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidName is returned for names that could not have been issued by Save.
var ErrInvalidName = errors.New("invalid blob name")

const keyPrefix = "upload/"

// gcInterval is how often the value log is compacted for disk-backed stores.
const gcInterval = 5 * time.Minute

// Store is a Badger-backed blob store. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *zap.Logger

	gcTicker *time.Ticker
	gcStop   chan struct{}
	gcWg     sync.WaitGroup
}

// Open opens (or creates) a store under dir. An empty dir opens an in-memory
// store whose contents are lost on Close.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create blob dir: %w", err)
		}
		opts = badger.DefaultOptions(filepath.Join(dir, "blob")).
			WithCompression(options.Snappy)
	}
	// The default INFO logging is a bit verbose
	opts = opts.WithLogger(newBadgerLogger(logger)).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if dir != "" {
		s.gcTicker = time.NewTicker(gcInterval)
		s.gcStop = make(chan struct{})
		s.gcWg.Add(1)
		go s.runGC()
	}
	return s, nil
}

func (s *Store) runGC() {
	defer s.gcWg.Done()
	for {
		select {
		case <-s.gcTicker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					// Run it again if it just ran successfully
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("blob store GC failed", zap.Error(err))
				}
				break
			}
		case <-s.gcStop:
			return
		}
	}
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		close(s.gcStop)
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	return s.db.Close()
}

// NewName returns a fresh random blob name keeping filename's extension.
func NewName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !validExt(ext) {
		ext = ""
	}
	return uuid.NewString() + ext
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 16 || ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// ValidName reports whether name has the shape NewName produces.
func ValidName(name string) bool {
	base, ext, hasExt := strings.Cut(name, ".")
	if len(base) != 36 {
		return false
	}
	if _, err := uuid.Parse(base); err != nil {
		return false
	}
	return !hasExt || validExt("."+ext)
}

// Save stores data under a new name derived from filename and returns it.
func (s *Store) Save(ctx context.Context, filename string, data []byte) (string, error) {
	name := NewName(filename)
	if err := s.Put(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// Put stores data under name, replacing any existing blob.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+name), data)
	}); err != nil {
		return fmt.Errorf("put blob %s: %w", name, err)
	}
	s.logger.Debug("blob stored", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}

// Get returns the blob stored under name.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", name, err)
	}
	return data, nil
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func newBadgerLogger(logger *zap.Logger) *badgerLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &badgerLogger{sugar: logger.With(zap.String("component", "blobstore")).Sugar()}
}

func (l *badgerLogger) Errorf(msg string, args ...any)   { l.sugar.Errorf(strings.TrimSpace(msg), args...) }
func (l *badgerLogger) Warningf(msg string, args ...any) { l.sugar.Warnf(strings.TrimSpace(msg), args...) }
func (l *badgerLogger) Infof(msg string, args ...any)    { l.sugar.Infof(strings.TrimSpace(msg), args...) }
func (l *badgerLogger) Debugf(msg string, args ...any)   { l.sugar.Debugf(strings.TrimSpace(msg), args...) }
