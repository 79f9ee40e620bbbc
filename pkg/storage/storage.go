// Package storage keeps individual Avro records in a pebble database.
//
// Records are stored in single-object encoding under their ksuid. The
// writer schema of every record is stored once, keyed by its fingerprint,
// so records can be read back with any compatible reader schema.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/avrokit/pkg/types"
)

// Errors
var (
	ErrNotFound        = errors.New("storage: record not found")
	ErrUnknownSchema   = errors.New("storage: unknown writer schema")
	ErrBadSingleObject = errors.New("storage: bad single-object encoding")
)

var (
	schemaPrefix = []byte("schema/")
	recordPrefix = []byte("record/")
)

// StoreConfig holds configuration for a Store
type StoreConfig struct {
	Sync          bool           // Sync every write to disk
	InMemory      bool           // Keep the database in memory; dir is ignored
	SchemaOptions *types.Options // Options for parsing stored schemas
}

// Store persists records of any registered schema.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	opts      *types.Options

	mutex     sync.RWMutex
	schemas   map[uint64]*types.Type
	resolvers map[resolverKey]*types.Resolver
}

type resolverKey struct {
	writer uint64
	reader *types.Type
}

// Open opens or creates the store in dir.
func Open(dir string, config StoreConfig) (*Store, error) {
	opts := &pebble.Options{}
	if config.InMemory {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	writeOpts := pebble.NoSync
	if config.Sync {
		writeOpts = pebble.Sync
	}
	return &Store{
		db:        db,
		writeOpts: writeOpts,
		opts:      config.SchemaOptions,
		schemas:   make(map[uint64]*types.Type),
		resolvers: make(map[resolverKey]*types.Resolver),
	}, nil
}

func schemaKey(fp uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", schemaPrefix, fp))
}

func recordKey(id ksuid.KSUID) []byte {
	return append(append([]byte(nil), recordPrefix...), id.Bytes()...)
}

// RegisterSchema stores t under its fingerprint and returns the fingerprint.
// Registering the same schema again is a no-op.
func (s *Store) RegisterSchema(t *types.Type) (uint64, error) {
	fp := t.Fingerprint()

	s.mutex.RLock()
	_, ok := s.schemas[fp]
	s.mutex.RUnlock()
	if ok {
		return fp, nil
	}

	if err := s.db.Set(schemaKey(fp), []byte(t.String()), s.writeOpts); err != nil {
		return 0, fmt.Errorf("failed to store schema: %w", err)
	}
	s.mutex.Lock()
	s.schemas[fp] = t
	s.mutex.Unlock()
	return fp, nil
}

// Schema returns the writer schema stored under fp.
func (s *Store) Schema(fp uint64) (*types.Type, error) {
	s.mutex.RLock()
	t, ok := s.schemas[fp]
	s.mutex.RUnlock()
	if ok {
		return t, nil
	}

	raw, err := s.get(schemaKey(fp))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: fingerprint %016x", ErrUnknownSchema, fp)
	}
	if err != nil {
		return nil, err
	}
	t, err = types.Parse(string(raw), s.opts)
	if err != nil {
		return nil, fmt.Errorf("stored schema %016x: %w", fp, err)
	}

	s.mutex.Lock()
	s.schemas[fp] = t
	s.mutex.Unlock()
	return t, nil
}

// Put encodes v with t and stores it under a new ksuid.
func (s *Store) Put(t *types.Type, v any) (ksuid.KSUID, error) {
	if _, err := s.RegisterSchema(t); err != nil {
		return ksuid.Nil, err
	}
	data, err := EncodeSingleObject(t, v)
	if err != nil {
		return ksuid.Nil, err
	}
	id := ksuid.New()
	if err := s.PutRaw(id, data); err != nil {
		return ksuid.Nil, err
	}
	return id, nil
}

// PutRaw stores an already single-object encoded record under id. The
// writer schema must have been registered.
func (s *Store) PutRaw(id ksuid.KSUID, data []byte) error {
	fp, _, err := DecodeSingleObject(data)
	if err != nil {
		return err
	}
	if _, err := s.Schema(fp); err != nil {
		return err
	}
	if err := s.db.Set(recordKey(id), data, s.writeOpts); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

// Get reads the record stored under id. With a nil reader the record is
// returned as written; otherwise it is resolved into reader.
func (s *Store) Get(id ksuid.KSUID, reader *types.Type) (any, error) {
	data, err := s.get(recordKey(id))
	if err != nil {
		return nil, err
	}
	return s.decode(data, reader)
}

func (s *Store) decode(data []byte, reader *types.Type) (any, error) {
	fp, datum, err := DecodeSingleObject(data)
	if err != nil {
		return nil, err
	}
	writer, err := s.Schema(fp)
	if err != nil {
		return nil, err
	}
	if reader == nil {
		return writer.Decode(datum)
	}
	res, err := s.resolver(fp, writer, reader)
	if err != nil {
		return nil, err
	}
	return res.Decode(datum)
}

// resolver returns the cached resolver from the writer schema fp to reader.
func (s *Store) resolver(fp uint64, writer, reader *types.Type) (*types.Resolver, error) {
	key := resolverKey{writer: fp, reader: reader}

	s.mutex.RLock()
	res, ok := s.resolvers[key]
	s.mutex.RUnlock()
	if ok {
		return res, nil
	}

	res, err := reader.CreateResolver(writer)
	if err != nil {
		return nil, err
	}
	s.mutex.Lock()
	s.resolvers[key] = res
	s.mutex.Unlock()
	return res, nil
}

// Delete removes the record stored under id.
func (s *Store) Delete(id ksuid.KSUID) error {
	key := recordKey(id)
	if _, err := s.get(key); err != nil {
		return err
	}
	return s.db.Delete(key, s.writeOpts)
}

// Scan calls fn for every record in id order, resolved into reader as Get
// does. An error from fn stops the scan and is returned.
func (s *Store) Scan(reader *types.Type, fn func(id ksuid.KSUID, v any) error) error {
	upper := append([]byte(nil), recordPrefix...)
	upper[len(upper)-1]++

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: recordPrefix, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, err := ksuid.FromBytes(iter.Key()[len(recordPrefix):])
		if err != nil {
			return fmt.Errorf("bad record key %x: %w", iter.Key(), err)
		}
		v, err := s.decode(iter.Value(), reader)
		if err != nil {
			return fmt.Errorf("record %s: %w", id, err)
		}
		if err := fn(id, v); err != nil {
			return err
		}
	}
	return iter.Error()
}

// get copies the value stored under key.
func (s *Store) get(key []byte) ([]byte, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return append([]byte(nil), data...), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
