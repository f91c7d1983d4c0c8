// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage
const (
	operationKeyPrefix       = "op:"
	operationTenantKeyPrefix = "op_tenant:"
)

// BadgerStore implements Store using BadgerDB for durable storage.
type BadgerStore struct {
	db     *badger.DB
	closer bool
}

// NewBadgerStore wraps an open BadgerDB. The caller keeps ownership of db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens (or creates) a BadgerDB at dir. Close releases it.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db, closer: true}, nil
}

// Record inserts or replaces an operation.
func (s *BadgerStore) Record(_ context.Context, op *Operation) error {
	if op == nil || op.ID == "" {
		return errors.New("operation with id is required")
	}
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(operationKeyPrefix+op.ID), data); err != nil {
			return fmt.Errorf("set operation: %w", err)
		}

		// Tenant index for List(TenantID)
		tenantKey := []byte(operationTenantKeyPrefix + op.TenantID + ":" + op.ID)
		if err := txn.Set(tenantKey, []byte(op.ID)); err != nil {
			return fmt.Errorf("set tenant index: %w", err)
		}
		return nil
	})
}

// Get returns the operation with the given id.
func (s *BadgerStore) Get(_ context.Context, id string) (*Operation, error) {
	var op Operation

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(operationKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("get operation: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &op)
		})
	})
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// List returns matching operations, most recently started first.
func (s *BadgerStore) List(ctx context.Context, filter Filter) ([]Operation, error) {
	var ids []string
	if filter.TenantID != "" {
		var err error
		ids, err = s.tenantOperationIDs(filter.TenantID)
		if err != nil {
			return nil, err
		}
	}

	results := make([]Operation, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		if ids != nil {
			for _, id := range ids {
				item, err := txn.Get([]byte(operationKeyPrefix + id))
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if err := appendMatching(item, &filter, &results); err != nil {
					return err
				}
			}
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(operationKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := appendMatching(it.Item(), &filter, &results); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}

	sortRecentFirst(results)
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *BadgerStore) tenantOperationIDs(tenantID string) ([]string, error) {
	ids := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(operationTenantKeyPrefix + tenantID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tenant operations: %w", err)
	}
	return ids, nil
}

func appendMatching(item *badger.Item, filter *Filter, results *[]Operation) error {
	return item.Value(func(val []byte) error {
		var op Operation
		if err := json.Unmarshal(val, &op); err != nil {
			return fmt.Errorf("decode operation: %w", err)
		}
		if filter.matches(&op) {
			*results = append(*results, op)
		}
		return nil
	})
}

// Close closes the database if this store opened it.
func (s *BadgerStore) Close() error {
	if !s.closer {
		return nil
	}
	return s.db.Close()
}
