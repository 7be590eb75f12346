// Package redisstore implements storage.Store on Redis. Each row is one JSON
// document; an index set per table lists the stored identifiers.
package redisstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
)

// Config holds Redis connection settings
type Config struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to every key
	Prefix string
}

// DefaultConfig returns the default Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "tuplizer:",
	}
}

// Store is a storage.Store over Redis
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// Open connects to Redis and verifies the connection
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, cfg.Prefix, logger), nil
}

// NewWithClient creates a store with an existing client
func NewWithClient(client *redis.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, prefix: prefix, logger: logger}
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) rowKey(meta *schema.EntityMetadata, id interface{}) string {
	return fmt.Sprintf("%s%s:%v", s.prefix, meta.TableName(), id)
}

func (s *Store) indexKey(meta *schema.EntityMetadata) string {
	return s.prefix + meta.TableName() + ":ids"
}

func (s *Store) sequenceKey(meta *schema.EntityMetadata) string {
	return s.prefix + meta.TableName() + ":seq"
}

func (s *Store) LoadRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) (storage.Row, error) {
	data, err := s.client.Get(ctx, s.rowKey(meta, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.NotFound(meta.Name, id)
		}
		return nil, err
	}
	return decodeRow(meta, data)
}

func (s *Store) PersistRow(ctx context.Context, meta *schema.EntityMetadata, row storage.Row) (interface{}, error) {
	idName, err := storage.IdentifierName(meta)
	if err != nil {
		return nil, err
	}

	stored := row.Clone()
	if meta.Strategy == schema.StoreAssigned {
		n, err := s.NextSequence(ctx, meta)
		if err != nil {
			return nil, err
		}
		stored[idName] = n
	}
	id := stored[idName]
	if id == nil {
		return nil, fmt.Errorf("persist %s: identifier is unset", meta.Name)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", meta.Name, err)
	}

	key := s.rowKey(meta, id)
	created, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("persist %s: %w", key, storage.ErrConflict)
	}
	if err := s.client.SAdd(ctx, s.indexKey(meta), fmt.Sprint(id)).Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("row stored", zap.String("key", key))
	return id, nil
}

// UpdateRow merges the given attributes into the stored document. The
// read-modify-write is retried when another client changes the row meanwhile.
func (s *Store) UpdateRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}, row storage.Row) error {
	key := s.rowKey(meta, id)

	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return storage.NotFound(meta.Name, id)
			}
			return err
		}

		var merged map[string]json.RawMessage
		if err := json.Unmarshal(data, &merged); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		for k, v := range row {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %s.%s: %w", meta.Name, k, err)
			}
			merged[k] = raw
		}
		out, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, update, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.logger.Debug("optimistic update retried", zap.String("key", key), zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("update %s: %w", key, storage.ErrConflict)
}

func (s *Store) DeleteRow(ctx context.Context, meta *schema.EntityMetadata, id interface{}) error {
	n, err := s.client.Del(ctx, s.rowKey(meta, id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.NotFound(meta.Name, id)
	}
	return s.client.SRem(ctx, s.indexKey(meta), fmt.Sprint(id)).Err()
}

// NextSequence issues sequence identifiers shared by every client of the server
func (s *Store) NextSequence(ctx context.Context, meta *schema.EntityMetadata) (int64, error) {
	return s.client.Incr(ctx, s.sequenceKey(meta)).Result()
}

// Identifiers returns the stored identifiers of an entity, sorted by their
// string form
func (s *Store) Identifiers(ctx context.Context, meta *schema.EntityMetadata) ([]interface{}, error) {
	if meta.Identifier == nil {
		return nil, &storage.UnkeyedEntityError{Entity: meta.Name}
	}

	members, err := s.client.SMembers(ctx, s.indexKey(meta)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)

	ids := make([]interface{}, 0, len(members))
	for _, m := range members {
		id, err := meta.Identifier.Type.Coerce(m)
		if err != nil {
			return nil, fmt.Errorf("index of %s: %w", meta.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// decodeRow restores canonical values from a JSON document. Integers and
// identifiers are decoded as json.Number so large values keep their precision.
func decodeRow(meta *schema.EntityMetadata, data []byte) (storage.Row, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", meta.Name, err)
	}

	row := make(storage.Row, len(doc))
	if raw, ok := doc[meta.Identifier.Name]; ok {
		id, err := decodeValue(meta.Identifier, raw)
		if err != nil {
			return nil, err
		}
		row[meta.Identifier.Name] = id
	}

	for _, attr := range meta.Attributes {
		raw, ok := doc[attr.Name]
		if !ok {
			continue
		}
		v, err := decodeValue(attr, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", meta.Name, attr.Name, err)
		}
		row[attr.Name] = v
	}
	return row, nil
}

func decodeValue(attr *schema.AttributeDescriptor, raw json.RawMessage) (interface{}, error) {
	var v interface{}
	switch attr.Type {
	case schema.TypeInt, schema.TypeAssociation:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
	}

	if attr.IsAssociation() {
		return v, nil
	}
	return attr.Type.Coerce(v)
}
