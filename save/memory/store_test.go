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

package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
)

func TestWritesVisibleAfterCommit(t *testing.T) {
	ctx := context.Background()
	st := NewStore(record.MultiValuedFields, "statistics")
	require.NoError(t, st.Add(ctx, "statistics", record.Doc{"uid": {"u1"}, "id": {"I1"}}))
	assert.Equal(t, 0, st.Count("statistics", query.All()))
	require.NoError(t, st.Commit(ctx, "statistics"))
	assert.Equal(t, 1, st.Count("statistics", query.All()))

	require.NoError(t, st.Add(ctx, "statistics", record.Doc{"uid": {"u1"}, "id": {"I2"}}))
	require.NoError(t, st.Commit(ctx, "statistics"))
	assert.Equal(t, 1, st.Count("statistics", query.All()))
	assert.Equal(t, 1, st.Count("statistics", query.Term("id", "I2")))
}

func TestAddAssignsKeyAndVersion(t *testing.T) {
	ctx := context.Background()
	st := NewStore(nil, "statistics")
	require.NoError(t, st.Add(ctx, "statistics", record.Doc{"id": {"I1"}}))
	require.NoError(t, st.Commit(ctx, "statistics"))
	resp, err := st.Select(ctx, "statistics", save.SelectRequest{Query: query.All(), Rows: 10})
	require.NoError(t, err)
	require.Len(t, resp.Docs, 1)
	assert.NotEmpty(t, resp.Docs[0].Get(record.FieldUID))
	assert.NotEmpty(t, resp.Docs[0].Get(record.FieldVersion))
}

func TestRawQueryRejected(t *testing.T) {
	st := NewStore(nil, "statistics")
	err := st.DeleteByQuery(context.Background(), "statistics", query.Raw("id:1 OR id:2"))
	assert.ErrorIs(t, err, save.ErrUnsupportedQuery)
}

func TestCursorPagination(t *testing.T) {
	ctx := context.Background()
	st := NewStore(nil, "statistics")
	for _, uid := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, st.Add(ctx, "statistics", record.Doc{"uid": {uid}}))
	}
	require.NoError(t, st.Commit(ctx, "statistics"))
	var seen []string
	cursor := save.CursorStart
	for {
		resp, err := st.Select(ctx, "statistics", save.SelectRequest{Query: query.All(), Rows: 2, CursorMark: cursor})
		require.NoError(t, err)
		for _, d := range resp.Docs {
			seen = append(seen, d.Get("uid"))
		}
		if resp.NextCursorMark == cursor {
			break
		}
		cursor = resp.NextCursorMark
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestCSVRoundTripKeepsMultiValues(t *testing.T) {
	ctx := context.Background()
	st := NewStore(record.MultiValuedFields, "statistics", "statistics-2019")
	doc := record.Doc{
		"uid":        {"u1"},
		"owningColl": {"C1", "C|2"},
		"query":      {`a\b`},
		"city":       {"Brno"},
	}
	require.NoError(t, st.Add(ctx, "statistics", doc))
	require.NoError(t, st.Commit(ctx, "statistics"))

	var buff bytes.Buffer
	require.NoError(t, st.ExportCSV(ctx, "statistics", save.ExportRequest{Query: query.All(), Rows: 10}, &buff))
	require.NoError(t, st.ImportCSV(ctx, "statistics-2019", &buff, save.ImportOptions{MultiValued: record.MultiValuedFields}))
	require.NoError(t, st.Commit(ctx, "statistics-2019"))

	resp, err := st.Select(ctx, "statistics-2019", save.SelectRequest{Query: query.All(), Rows: 10})
	require.NoError(t, err)
	require.Len(t, resp.Docs, 1)
	imported := resp.Docs[0]
	imported.StripInternal()
	assert.Equal(t, doc, imported)
}

func TestFacetsAndShards(t *testing.T) {
	ctx := context.Background()
	st := NewStore(nil, "statistics", "statistics-2019")
	require.NoError(t, st.Add(ctx, "statistics", record.Doc{"type": {"item"}}, record.Doc{"type": {"collection"}}))
	require.NoError(t, st.Add(ctx, "statistics-2019", record.Doc{"type": {"item"}}))
	require.NoError(t, st.Commit(ctx, "statistics"))
	require.NoError(t, st.Commit(ctx, "statistics-2019"))

	resp, err := st.Select(ctx, "statistics", save.SelectRequest{
		Query:          query.All(),
		FacetFields:    []string{"type"},
		Shards:         []string{st.ShardAddress("statistics"), st.ShardAddress("statistics-2019")},
		Rows:           10,
		WithShardField: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.NumFound)
	assert.Equal(
		t,
		[]save.FacetCount{{Value: "item", Count: 2}, {Value: "collection", Count: 1}},
		resp.FacetFields["type"],
	)
	assert.Equal(t, "memory/statistics-2019", resp.Docs[2].Get(record.FieldShard))
}
