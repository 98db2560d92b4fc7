// Package directory keeps track of the Trusted Applications announced on the
// well-known registration socket and where their gateways listen.
package directory

import (
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const keyPrefix = "ta/"

// ErrNotFound is returned by Lookup for a TA that never registered.
var ErrNotFound = errors.New("trusted application not registered")

// Store persists uuid to socket path mappings.
type Store struct {
	db *badger.DB
}

// OpenStore opens the store under dataDir. An empty dataDir keeps everything in
// memory.
func OpenStore(dataDir string, l *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dataDir)
	if dataDir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{l.Sugar().Named("badger")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening directory store %q", dataDir)
	}

	return &Store{db: db}, nil
}

// Put records that the TA identified by uuid listens on socketPath.
func (s *Store) Put(uuid, socketPath string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+uuid), []byte(socketPath))
	})
}

// Lookup returns the socket path of the TA identified by uuid.
func (s *Store) Lookup(uuid string) (string, error) {
	var path string

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + uuid))
		if err != nil {
			return err
		}

		v, err := item.ValueCopy(nil)
		path = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", errors.Wrap(ErrNotFound, uuid)
	}

	return path, err
}

// Entries returns every registered TA.
func (s *Store) Entries() (map[string]string, error) {
	entries := map[string]string{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		itr := txn.NewIterator(opts)
		defer itr.Close()

		for itr.Rewind(); itr.Valid(); itr.Next() {
			item := itr.Item()

			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			entries[strings.TrimPrefix(string(item.Key()), keyPrefix)] = string(v)
		}

		return nil
	})

	return entries, err
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's own logging through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.Warnf(format, args...)
}
