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

package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
	"ustatproc/save/memory"
	"ustatproc/shards"
)

type fixedSpiderIPs []string

func (f fixedSpiderIPs) SpiderIPPrefixes() []string {
	return f
}

func viewDoc(uid, objType, id string, tm time.Time) record.Doc {
	return record.Doc{
		record.FieldUID:            {uid},
		record.FieldType:           {objType},
		record.FieldID:             {id},
		record.FieldIP:             {"192.0.2.10"},
		record.FieldIsBot:          {"false"},
		record.FieldTime:           {record.FormatTime(tm)},
		record.FieldStatisticsType: {string(record.StatsTypeView)},
	}
}

func newTestService(t *testing.T, docs map[string][]record.Doc) (*Service, *memory.Store) {
	ctx := context.Background()
	cores := make([]string, 0, len(docs))
	for c := range docs {
		cores = append(cores, c)
	}
	store := memory.NewStore(record.MultiValuedFields, cores...)
	for c, dd := range docs {
		require.NoError(t, store.Add(ctx, c, dd...))
		require.NoError(t, store.Commit(ctx, c))
	}
	router := shards.NewRouter(store, "statistics", true)
	conf := QueryFilterConf{IsBot: true, Bundles: []string{DefaultBundle}}
	return NewService(store, router, conf, fixedSpiderIPs{"66.249."}), store
}

func TestQueryFacetFieldWithTotal(t *testing.T) {
	tm := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, map[string][]record.Doc{
		"statistics": {
			viewDoc("1", "item", "i1", tm),
			viewDoc("2", "item", "i2", tm),
			viewDoc("3", "item", "i3", tm),
			viewDoc("4", "collection", "c1", tm),
			viewDoc("5", "collection", "c2", tm),
		},
	})
	ans, err := svc.QueryFacetField(context.Background(), query.Raw("*:*"), nil, record.FieldType, 5, true)
	require.NoError(t, err)
	assert.Equal(
		t,
		[]ObjectCount{
			{Value: "item", Count: 3},
			{Value: "collection", Count: 2},
			{Value: TotalValue, Count: 5},
		},
		ans,
	)
}

func TestDefaultFiltersExcludeBotsAndSpiderIPs(t *testing.T) {
	tm := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bot := viewDoc("2", "item", "i1", tm)
	bot.Set(record.FieldIsBot, "true")
	spider := viewDoc("3", "item", "i1", tm)
	spider.Set(record.FieldIP, "66.249.66.1")
	thumb := viewDoc("4", "bitstream", "b1", tm)
	thumb.Set(record.FieldBundleName, "THUMBNAIL")
	orig := viewDoc("5", "bitstream", "b2", tm)
	orig.Set(record.FieldBundleName, "ORIGINAL")

	svc, _ := newTestService(t, map[string][]record.Doc{
		"statistics": {viewDoc("1", "item", "i1", tm), bot, spider, thumb, orig},
	})
	ctx := context.Background()

	total, err := svc.QueryTotal(ctx, query.All(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total.Count)

	total, err = svc.QueryTotal(ctx, query.All(), nil, WithSpiderIPFilter(true))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total.Count)

	total, err = svc.QueryTotal(ctx, query.All(), nil, WithoutBotFilter(), WithBundles())
	require.NoError(t, err)
	assert.Equal(t, int64(5), total.Count)
}

func TestQueryFacetDateIsRelativeToNow(t *testing.T) {
	svc, _ := newTestService(t, map[string][]record.Doc{
		"statistics": {
			viewDoc("1", "item", "i1", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
			viewDoc("2", "item", "i1", time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC)),
			viewDoc("3", "item", "i1", time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)),
			viewDoc("4", "item", "i1", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
		},
	})
	svc.nowFn = func() time.Time {
		return time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	}
	ans, err := svc.QueryFacetDate(context.Background(), query.All(), nil, save.GapMonth, -2, 0, true)
	require.NoError(t, err)
	assert.Equal(
		t,
		[]ObjectCount{
			{Value: "2024-03", Count: 1},
			{Value: "2024-04", Count: 1},
			{Value: "2024-05", Count: 1},
			{Value: TotalValue, Count: 3},
		},
		ans,
	)
}

func TestQueryFacetQuerySpansShards(t *testing.T) {
	tm := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, map[string][]record.Doc{
		"statistics":      {viewDoc("1", "item", "i1", tm)},
		"statistics-2019": {viewDoc("2", "item", "i1", tm.AddDate(-5, 0, 0))},
	})
	fq := query.Term(record.FieldID, "i1")
	ans, err := svc.QueryFacetQuery(context.Background(), query.All(), nil, []query.Query{fq})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ans[fq.String()])
}

func TestRemoveObjectDeletesInAllShards(t *testing.T) {
	tm := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, map[string][]record.Doc{
		"statistics":      {viewDoc("1", "item", "i1", tm), viewDoc("3", "item", "i2", tm)},
		"statistics-2019": {viewDoc("2", "item", "i1", tm.AddDate(-5, 0, 0))},
	})
	require.NoError(t, svc.RemoveObject(context.Background(), "item", "i1"))
	assert.Equal(t, 1, store.Count("statistics", query.All()))
	assert.Equal(t, 0, store.Count("statistics-2019", query.All()))
}
