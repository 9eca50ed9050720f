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

package usage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustatproc/content"
	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
	"ustatproc/save/memory"
	"ustatproc/shards"
	"ustatproc/stats"
)

const liveCore = "statistics"

type uaSpiders struct{}

func (s uaSpiders) IsSpider(ip, ua string) bool {
	return strings.Contains(strings.ToLower(ua), "bot")
}

type fixedGeo struct{}

func (g fixedGeo) Geolocate(ip string) (record.GeoLocation, bool) {
	return record.GeoLocation{
		CountryCode: "CZ",
		City:        "Prague",
		Continent:   "EU",
		Latitude:    50.08,
		Longitude:   14.42,
	}, true
}

type fixedDNS struct{}

func (r fixedDNS) ReverseDNS(ctx context.Context, ip string) (string, bool) {
	return "host.example.org", true
}

func sampleItem() *content.Item {
	comm := &content.Community{Identifier: "M1"}
	coll := &content.Collection{Identifier: "C1", Communities: []*content.Community{comm}}
	return &content.Item{Identifier: "I1", Collections: []*content.Collection{coll}}
}

func newTestLogger(t *testing.T, conf Conf, reg prometheus.Registerer) (*Logger, *stats.Service, *memory.Store) {
	store := memory.NewStore(record.MultiValuedFields, liveCore)
	router := shards.NewRouter(store, liveCore, false)
	svc := stats.NewService(store, router, stats.QueryFilterConf{}, nil)
	builder := NewBuilder(
		conf,
		WithSpiderClassifier(uaSpiders{}),
		WithGeoLocator(fixedGeo{}),
		WithDNSResolver(fixedDNS{}),
	)
	var metrics *Metrics
	if reg != nil {
		var err error
		metrics, err = NewMetrics(reg)
		require.NoError(t, err)
	}
	return NewLogger(builder, svc, conf.AutoCommit, metrics), svc, store
}

func TestSpiderEventIsDroppedWithoutLogBots(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger, _, store := newTestLogger(t, Conf{}, reg)
	cc := ClientContext{RemoteIP: "192.0.2.1", UserAgent: "Googlebot/2.1"}
	err := logger.PostView(context.Background(), sampleItem(), cc, "")
	assert.NoError(t, err)
	assert.Equal(t, 0, store.Count(liveCore, query.All()))
	assert.Equal(t, 1.0, testutil.ToFloat64(logger.metrics.dropped.WithLabelValues("view")))
	assert.Equal(t, 0.0, testutil.ToFloat64(logger.metrics.posted.WithLabelValues("view")))
}

func TestSpiderEventIsMarkedWithLogBots(t *testing.T) {
	logger, _, store := newTestLogger(t, Conf{LogBots: true}, nil)
	cc := ClientContext{RemoteIP: "192.0.2.1", UserAgent: "Googlebot/2.1"}
	require.NoError(t, logger.PostView(context.Background(), sampleItem(), cc, ""))
	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldIsBot, "true")))
}

func TestViewRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(record.MultiValuedFields, liveCore)
	builder := NewBuilder(Conf{}, WithGeoLocator(fixedGeo{}), WithDNSResolver(fixedDNS{}))
	cc := ClientContext{
		RemoteIP:  "198.51.100.4",
		UserAgent: "Mozilla/5.0",
		Referrer:  "https://example.org/search",
	}
	doc, err := builder.BuildView(ctx, sampleItem(), cc, "e-42")
	require.NoError(t, err)
	require.NotNil(t, doc)

	require.NoError(t, store.Add(ctx, liveCore, doc))
	require.NoError(t, store.Commit(ctx, liveCore))
	resp, err := store.Select(ctx, liveCore, save.SelectRequest{
		Query: query.Term(record.FieldUID, doc.Get(record.FieldUID)),
		Rows:  10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Docs, 1)
	fetched := resp.Docs[0].Clone()
	fetched.StripInternal()
	assert.Equal(t, doc, fetched)
	assert.Equal(t, "host.example.org", fetched.Get(record.FieldDNS))
	assert.Equal(t, "CZ", fetched.Get(record.FieldCountryCode))
	assert.Equal(t, "https://example.org/search", fetched.Get(record.FieldReferrer))
}

func TestAnonymizeOnLogView(t *testing.T) {
	conf := Conf{
		AnonymizeOnLog: true,
		Masks:          record.Masks{IPv4: "0"},
		AutoCommit:     false,
	}
	logger, _, store := newTestLogger(t, conf, nil)
	cc := ClientContext{RemoteIP: "203.0.113.7", UserAgent: "Mozilla/5.0"}
	require.NoError(t, logger.PostView(context.Background(), sampleItem(), cc, ""))

	resp, err := store.Select(context.Background(), liveCore, save.SelectRequest{Query: query.All(), Rows: 10})
	require.NoError(t, err)
	require.Len(t, resp.Docs, 1)
	doc := resp.Docs[0]
	assert.Equal(t, "203.0.113.0", doc.Get(record.FieldIP))
	assert.Equal(t, []string{"C1"}, doc.GetAll(record.FieldOwningColl))
	assert.Equal(t, []string{"M1"}, doc.GetAll(record.FieldOwningComm))
	assert.Equal(t, "view", doc.Get(record.FieldStatisticsType))
	assert.Equal(t, record.DefaultDNSMask, doc.Get(record.FieldDNS))
	assert.Equal(t, "CZ", doc.Get(record.FieldCountryCode))
}

func TestAnonymizeOnLogInvalidAddress(t *testing.T) {
	logger, _, store := newTestLogger(t, Conf{AnonymizeOnLog: true}, nil)
	cc := ClientContext{RemoteIP: "not-an-ip"}
	err := logger.PostView(context.Background(), sampleItem(), cc, "")
	assert.ErrorIs(t, err, record.ErrUnknownAddressFamily)
	var ingErr *IngestError
	assert.False(t, errors.As(err, &ingErr))
	assert.Equal(t, 0, store.Count(liveCore, query.All()))
}

func TestStoreFailureIsIngestError(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger, _, store := newTestLogger(t, Conf{}, reg)
	store.SetFailure(memory.OpAdd, errors.New("connection refused"))
	err := logger.PostLogin(context.Background(), ClientContext{RemoteIP: "192.0.2.5"}, "e-1")
	var ingErr *IngestError
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, record.StatsTypeLogin, ingErr.StatisticsType)
	assert.Equal(t, 1.0, testutil.ToFloat64(logger.metrics.failed.WithLabelValues("login")))
}

func TestBuildSearch(t *testing.T) {
	builder := NewBuilder(Conf{})
	builder.nowFn = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	coll := &content.Collection{Identifier: "C9"}
	doc, err := builder.BuildSearch(
		context.Background(),
		SearchEvent{Scope: coll, RPP: 20, Page: -1, SortBy: "dc.title", SortOrder: "asc"},
		ClientContext{RemoteIP: "192.0.2.8"},
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "search", doc.Get(record.FieldStatisticsType))
	assert.Equal(t, []string{""}, doc.GetAll(record.FieldQuery))
	assert.Equal(t, "C9", doc.Get(record.FieldScopeID))
	assert.Equal(t, "collection", doc.Get(record.FieldScopeType))
	assert.Equal(t, "20", doc.Get(record.FieldRPP))
	assert.False(t, doc.Has(record.FieldPage))
	assert.Equal(t, "asc", doc.Get(record.FieldSortOrder))
	assert.Equal(t, "2024-01-02T03:04:05.000Z", doc.Get(record.FieldTime))
	assert.False(t, doc.Has(record.FieldID))

	doc, err = builder.BuildSearch(
		context.Background(),
		SearchEvent{Queries: []string{"corpus"}, Result: sampleItem(), RPP: -1, Page: 2},
		ClientContext{RemoteIP: "192.0.2.8"},
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "search_result", doc.Get(record.FieldStatisticsType))
	assert.Equal(t, "I1", doc.Get(record.FieldID))
	assert.Equal(t, []string{"C1"}, doc.GetAll(record.FieldOwningColl))
	assert.False(t, doc.Has(record.FieldSortOrder))
}

func TestBuildWorkflow(t *testing.T) {
	builder := NewBuilder(Conf{})
	doc, err := builder.BuildWorkflow(
		context.Background(),
		WorkflowEvent{
			Item:           sampleItem(),
			WorkflowItemID: "17",
			Step:           "reviewstep",
			OwnerGroups:    []string{"5"},
			OwnerEPersons:  []string{"8"},
			Actor:          "e-3",
		},
		ClientContext{},
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "workflow", doc.Get(record.FieldStatisticsType))
	assert.Equal(t, []string{"g5", "e8"}, doc.GetAll(record.FieldOwner))
	assert.False(t, doc.Has(record.FieldIP))
	assert.False(t, doc.Has(record.FieldPreviousWorkflowStep))
	assert.Equal(t, "false", doc.Get(record.FieldIsBot))
}

func TestBuildLoginRequiresEPerson(t *testing.T) {
	builder := NewBuilder(Conf{})
	_, err := builder.BuildLogin(context.Background(), ClientContext{RemoteIP: "192.0.2.8"}, "")
	assert.Error(t, err)
}

func TestBitstreamViewHasBundleNames(t *testing.T) {
	item := sampleItem()
	bundle := &content.Bundle{Identifier: "B1", Name: "ORIGINAL", Items: []*content.Item{item}}
	bs := &content.Bitstream{Identifier: "F1", Bundles: []*content.Bundle{bundle}}
	builder := NewBuilder(Conf{})
	doc, err := builder.BuildView(context.Background(), bs, ClientContext{RemoteIP: "192.0.2.8"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ORIGINAL"}, doc.GetAll(record.FieldBundleName))
	assert.Equal(t, []string{"I1"}, doc.GetAll(record.FieldOwningItem))
	assert.Equal(t, []string{"M1"}, doc.GetAll(record.FieldOwningComm))
}

type failingEnricher struct{}

func (e failingEnricher) Enrich(doc record.Doc, reqCtx any, obj content.Object) error {
	doc.Set("partial", "1")
	return errors.New("enrichment failed")
}

func TestEnricherFailureKeepsDocument(t *testing.T) {
	builder := NewBuilder(Conf{}, WithEnrichers(failingEnricher{}))
	doc, err := builder.BuildView(context.Background(), sampleItem(), ClientContext{RemoteIP: "192.0.2.8"}, "")
	require.NoError(t, err)
	assert.Equal(t, "I1", doc.Get(record.FieldID))
}
