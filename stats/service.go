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

// Package stats provides queries over usage statistics with the default
// filters applied (bot documents, legacy spider IPs, non-content bundles).
package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
	"ustatproc/shards"
)

const (
	// TotalValue is the value of the pseudo bucket with the total
	// number of matching documents
	TotalValue = "total"

	DefaultBundle = "ORIGINAL"
)

// QueryFilterConf configures default filters applied to all queries
type QueryFilterConf struct {
	IsBot    bool     `json:"isBot"`
	SpiderIP bool     `json:"spiderIp"`
	Bundles  []string `json:"bundles"`
}

// SpiderIPSource provides the legacy spider IP list in the form
// of dotted prefixes
type SpiderIPSource interface {
	SpiderIPPrefixes() []string
}

type ObjectCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

type queryOptions struct {
	botFilter      bool
	spiderIPFilter bool
	bundles        []string
}

type Option func(opts *queryOptions)

// WithoutBotFilter includes documents marked as bots
func WithoutBotFilter() Option {
	return func(opts *queryOptions) {
		opts.botFilter = false
	}
}

func WithSpiderIPFilter(enabled bool) Option {
	return func(opts *queryOptions) {
		opts.spiderIPFilter = enabled
	}
}

// WithBundles sets bundles bitstream documents must belong to.
// No bundles disables the filter.
func WithBundles(bundles ...string) Option {
	return func(opts *queryOptions) {
		opts.bundles = bundles
	}
}

// Service answers statistics queries across all the shards
// and writes new documents into the live core.
type Service struct {
	store     save.Store
	router    *shards.Router
	conf      QueryFilterConf
	spiderIPs SpiderIPSource
	nowFn     func() time.Time
}

func NewService(store save.Store, router *shards.Router, conf QueryFilterConf, spiderIPs SpiderIPSource) *Service {
	return &Service{
		store:     store,
		router:    router,
		conf:      conf,
		spiderIPs: spiderIPs,
		nowFn:     time.Now,
	}
}

func (s *Service) Router() *shards.Router {
	return s.router
}

func (s *Service) Store() save.Store {
	return s.store
}

func (s *Service) options(opts []Option) queryOptions {
	ans := queryOptions{
		botFilter:      s.conf.IsBot,
		spiderIPFilter: s.conf.SpiderIP,
		bundles:        s.conf.Bundles,
	}
	for _, fn := range opts {
		fn(&ans)
	}
	return ans
}

// DefaultFilters returns filter queries applied with the provided options
func (s *Service) DefaultFilters(opts ...Option) []query.Query {
	o := s.options(opts)
	ans := make([]query.Query, 0, 3)
	if o.botFilter {
		ans = append(ans, query.Not(query.Term(record.FieldIsBot, "true")))
	}
	if o.spiderIPFilter && s.spiderIPs != nil {
		prefixes := s.spiderIPs.SpiderIPPrefixes()
		if len(prefixes) > 0 {
			ans = append(ans, query.Not(spiderIPQuery(prefixes)))
		}
	}
	if len(o.bundles) > 0 {
		ans = append(
			ans,
			query.Not(
				query.And(
					query.Term(record.FieldType, "bitstream"),
					query.Not(query.In(record.FieldBundleName, o.bundles...)),
				),
			),
		)
	}
	return ans
}

// spiderIPQuery matches addresses by dotted prefixes (ending with a dot)
// or exactly (full addresses)
func spiderIPQuery(prefixes []string) query.Query {
	items := make([]query.Query, len(prefixes))
	for i, p := range prefixes {
		if strings.HasSuffix(p, ".") {
			items[i] = query.Prefix(record.FieldIP, p)

		} else {
			items[i] = query.Term(record.FieldIP, p)
		}
	}
	return query.Or(items...)
}

func (s *Service) filters(filter query.Query, opts []Option) []query.Query {
	ans := s.DefaultFilters(opts...)
	if filter != nil {
		ans = append(ans, filter)
	}
	return ans
}

// Query returns documents matching q (and filter) from all the shards
func (s *Service) Query(
	ctx context.Context,
	q, filter query.Query,
	start, rows int,
	sort []save.SortField,
	opts ...Option,
) (*save.SelectResponse, error) {
	return s.router.QueryAcrossShards(ctx, save.SelectRequest{
		Query:   q,
		Filters: s.filters(filter, opts),
		Start:   start,
		Rows:    rows,
		Sort:    sort,
	})
}

// QueryFacetField returns the most frequent values of the field
// (at most maxValues, <= 0 means all of them) ordered by count.
// With showTotal, a trailing bucket with the total count is added.
func (s *Service) QueryFacetField(
	ctx context.Context,
	q, filter query.Query,
	field string,
	maxValues int,
	showTotal bool,
	opts ...Option,
) ([]ObjectCount, error) {
	resp, err := s.router.QueryAcrossShards(ctx, save.SelectRequest{
		Query:         q,
		Filters:       s.filters(filter, opts),
		FacetFields:   []string{field},
		FacetLimit:    maxValues,
		FacetMinCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to facet by %s: %w", field, err)
	}
	counts := resp.FacetFields[field]
	ans := make([]ObjectCount, 0, len(counts)+1)
	for _, c := range counts {
		ans = append(ans, ObjectCount{Value: c.Value, Count: c.Count})
	}
	if showTotal {
		ans = append(ans, ObjectCount{Value: TotalValue, Count: resp.NumFound})
	}
	return ans, nil
}

// QueryFacetQuery counts documents matching each of facetQueries.
// Result keys are the rendered facet queries.
func (s *Service) QueryFacetQuery(
	ctx context.Context,
	q, filter query.Query,
	facetQueries []query.Query,
	opts ...Option,
) (map[string]int64, error) {
	resp, err := s.router.QueryAcrossShards(ctx, save.SelectRequest{
		Query:        q,
		Filters:      s.filters(filter, opts),
		FacetQueries: facetQueries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run facet queries: %w", err)
	}
	return resp.FacetQueries, nil
}

func dateBucketFormat(unit save.GapUnit) string {
	switch unit {
	case save.GapYear:
		return "2006"
	case save.GapMonth:
		return "2006-01"
	case save.GapDay:
		return "2006-01-02"
	}
	return "2006-01-02T15"
}

// FacetDateRange counts documents in consecutive buckets of size gap
// between start and end. Bucket values are the starts of the buckets.
func (s *Service) FacetDateRange(
	ctx context.Context,
	q, filter query.Query,
	field string,
	start, end time.Time,
	gap save.Gap,
	showTotal bool,
	opts ...Option,
) ([]ObjectCount, error) {
	if err := gap.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.router.QueryAcrossShards(ctx, save.SelectRequest{
		Query:   q,
		Filters: s.filters(filter, opts),
		RangeFacet: &save.RangeFacet{
			Field: field,
			Start: start,
			End:   end,
			Gap:   gap,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to facet %s by date: %w", field, err)
	}
	buckets := resp.RangeFacets[field]
	ans := make([]ObjectCount, 0, len(buckets)+1)
	var total int64
	for _, b := range buckets {
		value := b.Value
		if t, err := record.ParseTime(b.Value); err == nil {
			value = t.UTC().Format(dateBucketFormat(gap.Unit))

		} else {
			log.Warn().Err(err).Str("value", b.Value).Msg("unexpected date bucket value")
		}
		ans = append(ans, ObjectCount{Value: value, Count: b.Count})
		total += b.Count
	}
	if showTotal {
		ans = append(ans, ObjectCount{Value: TotalValue, Count: total})
	}
	return ans, nil
}

// QueryFacetDate facets by the time field relatively to the current
// time. E.g. unit MONTH with dateStart -6 and dateEnd 0 yields buckets
// for the six previous months and the current one.
func (s *Service) QueryFacetDate(
	ctx context.Context,
	q, filter query.Query,
	unit save.GapUnit,
	dateStart, dateEnd int,
	showTotal bool,
	opts ...Option,
) ([]ObjectCount, error) {
	if dateEnd < dateStart {
		return nil, fmt.Errorf("invalid relative date range %d..%d", dateStart, dateEnd)
	}
	gap := save.Gap{Unit: unit, Count: 1}
	base := gap.Truncate(s.nowFn())
	return s.FacetDateRange(
		ctx,
		q,
		filter,
		record.FieldTime,
		gap.Add(base, dateStart),
		gap.Add(base, dateEnd+1),
		gap,
		showTotal,
		opts...,
	)
}

// QueryTotal returns the number of documents matching q
func (s *Service) QueryTotal(ctx context.Context, q, filter query.Query, opts ...Option) (ObjectCount, error) {
	resp, err := s.Query(ctx, q, filter, 0, 0, nil, opts...)
	if err != nil {
		return ObjectCount{}, err
	}
	return ObjectCount{Value: TotalValue, Count: resp.NumFound}, nil
}

func (s *Service) Add(ctx context.Context, docs ...record.Doc) error {
	return s.store.Add(ctx, s.router.LiveCore(), docs...)
}

func (s *Service) Commit(ctx context.Context) error {
	return s.store.Commit(ctx, s.router.LiveCore())
}

func (s *Service) DeleteByQuery(ctx context.Context, q query.Query) error {
	return s.store.DeleteByQuery(ctx, s.router.LiveCore(), q)
}

// MultiValuedFields lists multi-valued fields of the live core schema
func (s *Service) MultiValuedFields(ctx context.Context) ([]string, error) {
	ans, err := s.store.MultiValuedFields(ctx, s.router.LiveCore())
	if err != nil {
		return nil, err
	}
	sort.Strings(ans)
	return ans, nil
}

func (s *Service) CreateOrGetShard(ctx context.Context, name string) error {
	return s.router.CreateOrGetShard(ctx, name)
}
