// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/arbor/pkg/validation"
	"github.com/AleutianAI/arbor/services/morpho/graph"
)

// Sentinel errors for the result store.
var (
	ErrNotFound = errors.New("result not found")
	ErrNilDB    = errors.New("database must not be nil")
)

// resultKeyPrefix namespaces result records in the shared keyspace.
const resultKeyPrefix = "result/"

// ResultRecord is the persisted outcome of one diameter analysis.
type ResultRecord struct {
	// ID is the record identifier, assigned by the caller.
	ID string `json:"id"`

	// Name is the specimen or task label the analysis ran under.
	Name string `json:"name"`

	// Fingerprint is the content hash of the analyzed graph.
	Fingerprint string `json:"fingerprint"`

	// Length is the diameter: total edge weight of the winning path.
	Length float64 `json:"length"`

	// Path is the root-to-tip node sequence.
	Path []graph.NodeID `json:"path"`

	NodeCount  int   `json:"node_count"`
	TipCount   int   `json:"tip_count"`
	DurationMs int64 `json:"duration_ms"`

	// CreatedAtMilli is when the record was stored, Unix milliseconds.
	CreatedAtMilli int64 `json:"created_at_milli"`
}

// ResultStore persists analysis results in the archive database.
//
// Thread Safety: Safe for concurrent use.
type ResultStore struct {
	db *DB
}

// NewResultStore creates a result store over an open database.
func NewResultStore(db *DB) (*ResultStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &ResultStore{db: db}, nil
}

func resultKey(id string) []byte {
	return []byte(resultKeyPrefix + id)
}

// Put stores a record, overwriting any record with the same ID.
func (s *ResultStore) Put(ctx context.Context, rec *ResultRecord) error {
	if rec == nil {
		return errors.New("record must not be nil")
	}
	if err := validation.ValidateIdentifier(rec.ID); err != nil {
		return fmt.Errorf("record id: %w", err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", rec.ID, err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(resultKey(rec.ID), payload)
	})
}

// Get retrieves a record by ID.
//
// Returns ErrNotFound when no record exists under the ID.
func (s *ResultStore) Get(ctx context.Context, id string) (*ResultRecord, error) {
	if err := validation.ValidateIdentifier(id); err != nil {
		return nil, fmt.Errorf("record id: %w", err)
	}

	var rec ResultRecord
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns up to limit records in key order. A non-positive limit
// returns everything.
func (s *ResultStore) List(ctx context.Context, limit int) ([]*ResultRecord, error) {
	var records []*ResultRecord

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(resultKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var rec ResultRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("unmarshal %s: %w", it.Item().Key(), err)
				}
				records = append(records, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes a record by ID.
//
// Returns ErrNotFound when no record exists under the ID.
func (s *ResultStore) Delete(ctx context.Context, id string) error {
	if err := validation.ValidateIdentifier(id); err != nil {
		return fmt.Errorf("record id: %w", err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := resultKey(id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}
