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
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/kelindar/binary"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/sample"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

// ErrRunNotFound indicates an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Metadata and arrays live under disjoint prefixes so no variable name can
// be mistaken for a metadata key.
const (
	metaPrefix = "meta/"
	runPrefix  = "run/"
)

func metaKey(id string) []byte {
	return []byte(metaPrefix + id)
}

func arrayKey(id string, c int, name string) []byte {
	return []byte(runPrefix + id + "/chain/" + strconv.Itoa(c) + "/" + name)
}

func runKeyPrefix(id string) []byte {
	return []byte(runPrefix + id + "/")
}

// RunInfo describes a stored run.
type RunInfo struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
	Chains    int              `json:"chains"`
	Draws     []int            `json:"draws"`
	Variables []string         `json:"variables"`
	Shapes    map[string][]int `json:"shapes"`
	Sources   []string         `json:"sources,omitempty"`
}

// TotalDraws returns the number of draws across all chains.
func (r *RunInfo) TotalDraws() int {
	total := 0
	for _, n := range r.Draws {
		total += n
	}
	return total
}

// arrayRecord is the binary encoding of one variable of one chain.
type arrayRecord struct {
	Shape []int64
	Data  []float64
}

func encodeArray(a *sample.Array) ([]byte, error) {
	shape := a.Shape()
	rec := arrayRecord{Shape: make([]int64, len(shape)), Data: a.Data()}
	for i, d := range shape {
		rec.Shape[i] = int64(d)
	}
	return binary.Marshal(&rec)
}

func decodeArray(raw []byte) (*sample.Array, error) {
	var rec arrayRecord
	if err := binary.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	shape := make([]int, len(rec.Shape))
	for i, d := range rec.Shape {
		shape[i] = int(d)
	}
	return sample.New(shape, rec.Data)
}

// RunStore persists multi-chain runs.
//
// Thread Safety: Safe for concurrent use.
type RunStore struct {
	db      *DB
	metrics *telemetry.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewRunStore wraps db. metrics and logger may be nil.
func NewRunStore(db *DB, metrics *telemetry.Metrics, logger *logging.Logger) (*RunStore, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &RunStore{
		db:      db,
		metrics: metrics,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}, nil
}

// Save stores every chain of m under a new run ID.
//
// Description:
//
//	Arrays are written in a batch and the metadata last, so List and Load
//	only ever see complete runs. Variables are compacted first; a variable
//	with inconsistent draw shapes fails the save.
//
// Inputs:
//
//	ctx - Cancellation context.
//	name - Human-readable run name.
//	m - The chains to store.
//	sources - Optional provenance, e.g. the imported file paths.
//
// Outputs:
//
//	*RunInfo - Metadata of the stored run.
//	error - Non-nil if a variable cannot be read or the commit fails.
func (s *RunStore) Save(ctx context.Context, name string, m *chain.MultiTrace, sources []string) (info *RunInfo, err error) {
	defer func() { s.metrics.IncStoreOp(ctx, "save", err) }()

	info = &RunInfo{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
		Chains:    m.Len(),
		Variables: m.VarNames(),
		Shapes:    make(map[string][]int),
		Sources:   slices.Clone(sources),
	}

	type entry struct {
		key []byte
		val []byte
	}
	var entries []entry
	for c, tr := range m.Chains() {
		info.Draws = append(info.Draws, tr.Len())
		for _, v := range info.Variables {
			a, err := tr.ByName(v)
			if err != nil {
				return nil, fmt.Errorf("chain %d: %w", c, err)
			}
			if _, ok := info.Shapes[v]; !ok {
				info.Shapes[v] = a.Trailing()
			}
			raw, err := encodeArray(a)
			if err != nil {
				return nil, fmt.Errorf("encode chain %d variable %q: %w", c, v, err)
			}
			entries = append(entries, entry{key: arrayKey(info.ID, c, v), val: raw})
		}
	}

	meta, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode run metadata: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		if err := wb.Set(e.key, e.val); err != nil {
			return nil, fmt.Errorf("save run arrays: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("save run arrays: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(metaKey(info.ID), meta)
	})
	if err != nil {
		return nil, fmt.Errorf("save run metadata: %w", err)
	}

	s.logger.Info("run saved", "run_id", info.ID, "name", name, "chains", info.Chains, "draws", info.TotalDraws())
	return info, nil
}

// Info returns the metadata of run id.
func (s *RunStore) Info(ctx context.Context, id string) (info *RunInfo, err error) {
	defer func() { s.metrics.IncStoreOp(ctx, "info", err) }()

	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		info, err = readInfo(txn, id)
		return err
	})
	return info, err
}

func readInfo(txn *badger.Txn, id string) (*RunInfo, error) {
	item, err := txn.Get(metaKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var info RunInfo
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &info)
	})
	if err != nil {
		return nil, fmt.Errorf("decode run %s metadata: %w", id, err)
	}
	return &info, nil
}

// Load rebuilds the chains of run id.
//
// The returned chains are new traces seeded with the stored draws; they
// can be extended with Record like any other trace.
func (s *RunStore) Load(ctx context.Context, id string, opts ...chain.Option) (m *chain.MultiTrace, info *RunInfo, err error) {
	defer func() { s.metrics.IncStoreOp(ctx, "load", err) }()

	var arrays [][]*sample.Array
	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		info, err = readInfo(txn, id)
		if err != nil {
			return err
		}
		arrays = make([][]*sample.Array, info.Chains)
		for c := range arrays {
			arrays[c] = make([]*sample.Array, len(info.Variables))
			for i, v := range info.Variables {
				item, err := txn.Get(arrayKey(id, c, v))
				if err != nil {
					return fmt.Errorf("chain %d variable %q: %w", c, v, err)
				}
				err = item.Value(func(val []byte) error {
					a, err := decodeArray(val)
					arrays[c][i] = a
					return err
				})
				if err != nil {
					return fmt.Errorf("decode chain %d variable %q: %w", c, v, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	traces := make([]*chain.Trace, info.Chains)
	for c := range traces {
		tr, err := chain.New(chain.Names(info.Variables...), chain.Direct, opts...)
		if err != nil {
			return nil, nil, err
		}
		if err := replay(tr, info.Variables, arrays[c]); err != nil {
			return nil, nil, fmt.Errorf("chain %d: %w", c, err)
		}
		traces[c] = tr
	}
	m, err = chain.NewMulti(traces)
	if err != nil {
		return nil, nil, err
	}
	return m, info, nil
}

// replay records stored draws into tr in order.
func replay(tr *chain.Trace, names []string, arrays []*sample.Array) error {
	if len(arrays) == 0 {
		return nil
	}
	n := arrays[0].Len()
	for _, a := range arrays[1:] {
		if a.Len() != n {
			return fmt.Errorf("stored variables disagree on draw count: %d and %d", n, a.Len())
		}
	}
	for d := 0; d < n; d++ {
		p := make(chain.Point, len(names))
		for i, name := range names {
			row, err := arrays[i].At(d)
			if err != nil {
				return err
			}
			p[name] = row
		}
		if _, err := tr.Record(p); err != nil {
			return err
		}
	}
	return nil
}

// List returns every stored run, newest first.
func (s *RunStore) List(ctx context.Context) (runs []*RunInfo, err error) {
	defer func() { s.metrics.IncStoreOp(ctx, "list", err) }()

	err = s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var info RunInfo
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			runs = append(runs, &info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(runs, func(a, b *RunInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return runs, nil
}

// Delete removes run id and all its arrays.
//
// The metadata goes first, in its own transaction, so the run disappears
// from Info, Load and List at once; the arrays are then removed in a write
// batch.
func (s *RunStore) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.metrics.IncStoreOp(ctx, "delete", err) }()

	var keys [][]byte
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := readInfo(txn, id); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = runKeyPrefix(id)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		return txn.Delete(metaKey(id))
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete run arrays: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("delete run arrays: %w", err)
	}
	s.logger.Info("run deleted", "run_id", id, "arrays", len(keys))
	return nil
}
