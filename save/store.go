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

package save

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ustatproc/query"
	"ustatproc/record"
)

const (
	// MultiValueSeparator separates values of multi-valued fields
	// in bulk CSV export/import. It cannot occur in stored values.
	MultiValueSeparator = "|"

	// CursorStart is the initial value of a cursor based pagination
	CursorStart = "*"
)

var (
	ErrUnsupportedQuery = errors.New("query cannot be evaluated by the store")
	ErrCoreNotFound     = errors.New("core not found")
)

type GapUnit string

const (
	GapYear  GapUnit = "YEAR"
	GapMonth GapUnit = "MONTH"
	GapDay   GapUnit = "DAY"
	GapHour  GapUnit = "HOUR"
)

// Gap is a size of a date range facet bucket
type Gap struct {
	Unit  GapUnit
	Count int
}

func (g Gap) String() string {
	return fmt.Sprintf("+%d%s", g.Count, g.Unit)
}

// Add moves t by n gaps
func (g Gap) Add(t time.Time, n int) time.Time {
	switch g.Unit {
	case GapYear:
		return t.AddDate(g.Count*n, 0, 0)
	case GapMonth:
		return t.AddDate(0, g.Count*n, 0)
	case GapDay:
		return t.AddDate(0, 0, g.Count*n)
	case GapHour:
		return t.Add(time.Duration(g.Count*n) * time.Hour)
	}
	return t
}

// Truncate rounds t down to the gap unit (e.g. the first day
// of the month for GapMonth).
func (g Gap) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g.Unit {
	case GapYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case GapMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GapDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GapHour:
		return t.Truncate(time.Hour)
	}
	return t
}

func (g Gap) Validate() error {
	if g.Count <= 0 {
		return fmt.Errorf("invalid gap count %d", g.Count)
	}
	switch g.Unit {
	case GapYear, GapMonth, GapDay, GapHour:
		return nil
	}
	return fmt.Errorf("invalid gap unit '%s'", g.Unit)
}

type SortField struct {
	Field string
	Desc  bool
}

// RangeFacet counts documents in consecutive date buckets
// starting at Start. Buckets are lower-inclusive.
type RangeFacet struct {
	Field    string
	Start    time.Time
	End      time.Time
	Gap      Gap
	MinCount int
}

type SelectRequest struct {
	Query   query.Query
	Filters []query.Query

	// Fields limits returned fields, empty means all
	Fields []string
	Start  int
	Rows   int
	Sort   []SortField

	// CursorMark enables cursor pagination, use CursorStart for
	// the first page. Sort must end with the unique key.
	CursorMark string

	FacetFields []string

	// FacetLimit <= 0 means no limit
	FacetLimit    int
	FacetMinCount int
	FacetQueries  []query.Query
	RangeFacet    *RangeFacet

	// Shards lists shard addresses (see Store.ShardAddress) the query
	// should span. Empty means the addressed core only.
	Shards []string

	// WithShardField adds the record.FieldShard pseudo field to documents
	WithShardField bool
}

type FacetCount struct {
	Value string
	Count int64
}

type SelectResponse struct {
	NumFound       int64
	Docs           []record.Doc
	NextCursorMark string
	FacetFields    map[string][]FacetCount

	// FacetQueries are keyed by the rendered query
	FacetQueries map[string]int64
	RangeFacets  map[string][]FacetCount
}

// ExportRequest selects a page of documents for bulk export.
// Documents are always ordered by the unique key.
type ExportRequest struct {
	Query   query.Query
	Filters []query.Query
	Start   int
	Rows    int
}

type ImportOptions struct {
	// MultiValued fields get split by MultiValueSeparator
	MultiValued []string
}

// Store describes the primitives of a statistics document store
// with named cores.
type Store interface {
	Add(ctx context.Context, core string, docs ...record.Doc) error
	Commit(ctx context.Context, core string) error
	DeleteByQuery(ctx context.Context, core string, q query.Query) error
	Select(ctx context.Context, core string, req SelectRequest) (*SelectResponse, error)

	// ExportCSV writes matching documents as CSV with multi-valued
	// fields joined by MultiValueSeparator
	ExportCSV(ctx context.Context, core string, req ExportRequest, w io.Writer) error
	ImportCSV(ctx context.Context, core string, r io.Reader, opts ImportOptions) error
	MultiValuedFields(ctx context.Context, core string) ([]string, error)
	ListCores(ctx context.Context) ([]string, error)
	Ping(ctx context.Context, core string) error
	CreateCore(ctx context.Context, core string) error

	// ShardAddress returns the address of a core usable
	// in SelectRequest.Shards
	ShardAddress(core string) string
}
