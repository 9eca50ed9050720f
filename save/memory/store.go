// Copyright 2025 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2025 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory provides an in-memory statistics store with
// Solr-like visibility rules: writes become visible after commit
// and adds replace documents with the same unique key.
package memory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/google/uuid"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
)

const (
	addressPrefix = "memory/"
)

type Op string

const (
	OpAdd    Op = "add"
	OpCommit Op = "commit"
	OpDelete Op = "delete"
	OpImport Op = "import"
)

type pendingOp struct {
	add []record.Doc
	del query.Query
}

type core struct {
	docs    []record.Doc
	pending []pendingOp
}

func (c *core) apply(version *int64) {
	for _, op := range c.pending {
		if op.del != nil {
			kept := make([]record.Doc, 0, len(c.docs))
			for _, d := range c.docs {
				if !op.del.Match(d) {
					kept = append(kept, d)
				}
			}
			c.docs = kept
			continue
		}
		for _, d := range op.add {
			*version++
			d.Set(record.FieldVersion, strconv.FormatInt(*version, 10))
			uid := d.Get(record.FieldUID)
			replaced := false
			for i, curr := range c.docs {
				if curr.Get(record.FieldUID) == uid {
					c.docs[i] = d
					replaced = true
					break
				}
			}
			if !replaced {
				c.docs = append(c.docs, d)
			}
		}
	}
	c.pending = c.pending[:0]
}

// Store is an in-memory implementation of save.Store
type Store struct {
	mu          sync.Mutex
	cores       map[string]*core
	multiValued []string
	version     int64
	failures    map[Op]error
}

// NewStore creates a store with the provided (empty) cores
func NewStore(multiValued []string, cores ...string) *Store {
	ans := &Store{
		cores:       make(map[string]*core),
		multiValued: append([]string{}, multiValued...),
		failures:    make(map[Op]error),
	}
	for _, c := range cores {
		ans.cores[c] = &core{}
	}
	return ans
}

// SetFailure makes all subsequent operations of the type fail
// with the error. Passing nil removes the failure.
func (s *Store) SetFailure(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) getCore(name string) (*core, error) {
	c, ok := s.cores[name]
	if !ok {
		return nil, fmt.Errorf("core %s: %w", name, save.ErrCoreNotFound)
	}
	return c, nil
}

func (s *Store) Add(ctx context.Context, coreName string, docs ...record.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpAdd]; err != nil {
		return err
	}
	c, err := s.getCore(coreName)
	if err != nil {
		return err
	}
	c.pending = append(c.pending, pendingOp{add: s.prepareDocs(docs)})
	return nil
}

func (s *Store) prepareDocs(docs []record.Doc) []record.Doc {
	ans := make([]record.Doc, len(docs))
	for i, d := range docs {
		cp := d.Clone()
		cp.StripInternal()
		if !cp.Has(record.FieldUID) {
			cp.Set(record.FieldUID, uuid.New().String())
		}
		ans[i] = cp
	}
	return ans
}

func (s *Store) Commit(ctx context.Context, coreName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpCommit]; err != nil {
		return err
	}
	c, err := s.getCore(coreName)
	if err != nil {
		return err
	}
	c.apply(&s.version)
	return nil
}

func (s *Store) DeleteByQuery(ctx context.Context, coreName string, q query.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpDelete]; err != nil {
		return err
	}
	if !query.Evaluable(q) {
		return fmt.Errorf("%s: %w", q, save.ErrUnsupportedQuery)
	}
	c, err := s.getCore(coreName)
	if err != nil {
		return err
	}
	c.pending = append(c.pending, pendingOp{del: q})
	return nil
}

type located struct {
	doc  record.Doc
	core string
}

func (s *Store) matching(coreNames []string, q query.Query, filters []query.Query) ([]located, error) {
	all := append([]query.Query{q}, filters...)
	for _, item := range all {
		if item != nil && !query.Evaluable(item) {
			return nil, fmt.Errorf("%s: %w", item, save.ErrUnsupportedQuery)
		}
	}
	ans := make([]located, 0, 100)
	for _, name := range coreNames {
		c, err := s.getCore(name)
		if err != nil {
			return nil, err
		}
		for _, d := range c.docs {
			match := true
			for _, item := range all {
				if item != nil && !item.Match(d) {
					match = false
					break
				}
			}
			if match {
				ans = append(ans, located{doc: d, core: name})
			}
		}
	}
	return ans, nil
}

func sortLocated(items []located, sortFields []save.SortField) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, sf := range sortFields {
			cmp := query.CompareValues(items[i].doc.Get(sf.Field), items[j].doc.Get(sf.Field))
			if cmp == 0 {
				continue
			}
			if sf.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func (s *Store) shardCores(coreName string, shards []string) []string {
	if len(shards) == 0 {
		return []string{coreName}
	}
	ans := make([]string, len(shards))
	for i, sh := range shards {
		ans[i] = path.Base(sh)
	}
	return ans
}

func projectDoc(d record.Doc, fields []string) record.Doc {
	if len(fields) == 0 || collections.SliceContains(fields, "*") {
		return d.Clone()
	}
	ans := make(record.Doc)
	for _, f := range fields {
		if d.Has(f) {
			ans.Set(f, d.GetAll(f)...)
		}
	}
	return ans
}

func sortedCounts(counts map[string]int64, minCount, limit int) []save.FacetCount {
	ans := make([]save.FacetCount, 0, len(counts))
	for k, v := range counts {
		if v >= int64(minCount) {
			ans = append(ans, save.FacetCount{Value: k, Count: v})
		}
	}
	sort.Slice(ans, func(i, j int) bool {
		if ans[i].Count != ans[j].Count {
			return ans[i].Count > ans[j].Count
		}
		return ans[i].Value < ans[j].Value
	})
	if limit > 0 && len(ans) > limit {
		ans = ans[:limit]
	}
	return ans
}

func (s *Store) Select(ctx context.Context, coreName string, req save.SelectRequest) (*save.SelectResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.matching(s.shardCores(coreName, req.Shards), req.Query, req.Filters)
	if err != nil {
		return nil, err
	}
	ans := &save.SelectResponse{NumFound: int64(len(items))}

	if len(req.FacetFields) > 0 {
		ans.FacetFields = make(map[string][]save.FacetCount)
		for _, field := range req.FacetFields {
			counts := make(map[string]int64)
			for _, item := range items {
				seen := make(map[string]bool)
				for _, v := range item.doc.GetAll(field) {
					if !seen[v] {
						counts[v]++
						seen[v] = true
					}
				}
			}
			ans.FacetFields[field] = sortedCounts(counts, max(req.FacetMinCount, 1), req.FacetLimit)
		}
	}
	if len(req.FacetQueries) > 0 {
		ans.FacetQueries = make(map[string]int64)
		for _, fq := range req.FacetQueries {
			if !query.Evaluable(fq) {
				return nil, fmt.Errorf("%s: %w", fq, save.ErrUnsupportedQuery)
			}
			var cnt int64
			for _, item := range items {
				if fq.Match(item.doc) {
					cnt++
				}
			}
			ans.FacetQueries[fq.String()] = cnt
		}
	}
	if rf := req.RangeFacet; rf != nil {
		if err := rf.Gap.Validate(); err != nil {
			return nil, err
		}
		buckets := make([]save.FacetCount, 0, 20)
		for i, bStart := 0, rf.Start; bStart.Before(rf.End); i++ {
			bEnd := rf.Gap.Add(rf.Start, i+1)
			bq := query.TimeRange(rf.Field, bStart, bEnd)
			var cnt int64
			for _, item := range items {
				if bq.Match(item.doc) {
					cnt++
				}
			}
			if cnt >= int64(rf.MinCount) {
				buckets = append(
					buckets,
					save.FacetCount{Value: bStart.UTC().Format("2006-01-02T15:04:05Z"), Count: cnt},
				)
			}
			bStart = bEnd
		}
		ans.RangeFacets = map[string][]save.FacetCount{rf.Field: buckets}
	}

	if req.CursorMark != "" {
		sortLocated(items, []save.SortField{{Field: record.FieldUID}})
		if req.CursorMark != save.CursorStart {
			from := sort.Search(len(items), func(i int) bool {
				return items[i].doc.Get(record.FieldUID) > req.CursorMark
			})
			items = items[from:]
		}
		ans.NextCursorMark = req.CursorMark
		if len(items) > req.Rows {
			items = items[:req.Rows]
		}
		if len(items) > 0 {
			ans.NextCursorMark = items[len(items)-1].doc.Get(record.FieldUID)
		}

	} else {
		sortLocated(items, req.Sort)
		if req.Start >= len(items) {
			items = items[:0]

		} else {
			items = items[req.Start:]
		}
		if len(items) > req.Rows {
			items = items[:req.Rows]
		}
	}
	ans.Docs = make([]record.Doc, len(items))
	for i, item := range items {
		ans.Docs[i] = projectDoc(item.doc, req.Fields)
		if req.WithShardField {
			ans.Docs[i].Set(record.FieldShard, s.ShardAddress(item.core))
		}
	}
	return ans, nil
}

func escapeMultiValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, save.MultiValueSeparator, `\`+save.MultiValueSeparator)
}

func splitMultiValue(v string) []string {
	ans := make([]string, 0, 4)
	var curr strings.Builder
	escaped := false
	for _, c := range v {
		switch {
		case escaped:
			curr.WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case string(c) == save.MultiValueSeparator:
			ans = append(ans, curr.String())
			curr.Reset()
		default:
			curr.WriteRune(c)
		}
	}
	return append(ans, curr.String())
}

func (s *Store) ExportCSV(ctx context.Context, coreName string, req save.ExportRequest, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.matching([]string{coreName}, req.Query, req.Filters)
	if err != nil {
		return err
	}
	sortLocated(items, []save.SortField{{Field: record.FieldUID}})
	if req.Start >= len(items) {
		items = items[:0]

	} else {
		items = items[req.Start:]
	}
	if len(items) > req.Rows {
		items = items[:req.Rows]
	}
	columns := collections.Set[string]{}
	for _, item := range items {
		for _, f := range item.doc.Fields() {
			columns.Add(f)
		}
	}
	header := columns.ToSlice()
	sort.Strings(header)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, item := range items {
		row := make([]string, len(header))
		for i, col := range header {
			if collections.SliceContains(s.multiValued, col) {
				vals := item.doc.GetAll(col)
				escaped := make([]string, len(vals))
				for j, v := range vals {
					escaped[j] = escapeMultiValue(v)
				}
				row[i] = strings.Join(escaped, save.MultiValueSeparator)

			} else {
				row[i] = item.doc.Get(col)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Store) ImportCSV(ctx context.Context, coreName string, r io.Reader, opts save.ImportOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[OpImport]; err != nil {
		return err
	}
	c, err := s.getCore(coreName)
	if err != nil {
		return err
	}
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse CSV data: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	docs := make([]record.Doc, 0, len(rows)-1)
	for _, row := range rows[1:] {
		doc := make(record.Doc)
		for i, col := range header {
			if col == record.FieldVersion || i >= len(row) || row[i] == "" {
				continue
			}
			if collections.SliceContains(opts.MultiValued, col) {
				doc.Set(col, splitMultiValue(row[i])...)

			} else {
				doc.Set(col, row[i])
			}
		}
		docs = append(docs, doc)
	}
	c.pending = append(c.pending, pendingOp{add: s.prepareDocs(docs)})
	return nil
}

func (s *Store) MultiValuedFields(ctx context.Context, coreName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getCore(coreName); err != nil {
		return nil, err
	}
	ans := append([]string{}, s.multiValued...)
	sort.Strings(ans)
	return ans, nil
}

func (s *Store) ListCores(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ans := make([]string, 0, len(s.cores))
	for k := range s.cores {
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans, nil
}

func (s *Store) Ping(ctx context.Context, coreName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.getCore(coreName)
	return err
}

func (s *Store) CreateCore(ctx context.Context, coreName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cores[coreName]; ok {
		return fmt.Errorf("core %s already exists", coreName)
	}
	s.cores[coreName] = &core{}
	return nil
}

func (s *Store) ShardAddress(coreName string) string {
	return addressPrefix + coreName
}

// Count returns the number of committed documents in a core matching q.
// Intended for assertions in tests.
func (s *Store) Count(coreName string, q query.Query) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.matching([]string{coreName}, q, nil)
	if err != nil {
		return -1
	}
	return len(items)
}
