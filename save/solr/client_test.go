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

package solr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
)

const testServer = "http://localhost:8983/solr"

func newTestClient() *Client {
	c := NewClient(&ConnectionConf{
		Server:         testServer + "/",
		Core:           "statistics",
		ConfigSet:      "statistics",
		ReqTimeoutSecs: 5,
	})
	httpmock.ActivateNonDefault(c.http.GetClient())
	return c
}

func TestAddSendsScalarsAndArrays(t *testing.T) {
	c := newTestClient()
	defer httpmock.DeactivateAndReset()

	var sent []map[string]any
	httpmock.RegisterResponder(
		http.MethodPost,
		testServer+"/statistics/update",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "json", req.URL.Query().Get("wt"))
			if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(200, `{"responseHeader":{"status":0}}`), nil
		},
	)
	doc := record.Doc{
		"uid":               {"u1"},
		"owningColl":        {"c1", "c2"},
		record.FieldVersion: {"12345"},
		record.FieldShard:   {"localhost:8983/solr/statistics"},
	}
	err := c.Add(context.Background(), "statistics", doc)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "u1", sent[0]["uid"])
	assert.Equal(t, []any{"c1", "c2"}, sent[0]["owningColl"])
	assert.NotContains(t, sent[0], record.FieldVersion)
	assert.NotContains(t, sent[0], record.FieldShard)
}

func TestCommitAndDeleteByQuery(t *testing.T) {
	c := newTestClient()
	defer httpmock.DeactivateAndReset()

	var bodies []string
	httpmock.RegisterResponder(
		http.MethodPost,
		testServer+"/statistics/update",
		func(req *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(req.Body)
			bodies = append(bodies, string(b))
			return httpmock.NewStringResponse(200, `{}`), nil
		},
	)
	require.NoError(t, c.DeleteByQuery(context.Background(), "statistics", query.Term("id", "42")))
	require.NoError(t, c.Commit(context.Background(), "statistics"))
	require.Len(t, bodies, 2)
	assert.JSONEq(t, `{"delete":{"query":"id:\"42\""}}`, bodies[0])
	assert.JSONEq(t, `{"commit":{}}`, bodies[1])
}

func TestSelectParsesDocsAndFacets(t *testing.T) {
	c := newTestClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(
		http.MethodGet,
		testServer+"/statistics/select",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "flat", q.Get("json.nl"))
			assert.Equal(t, "*", q.Get("cursorMark"))
			assert.Equal(t, "uid asc", q.Get("sort"))
			assert.Equal(t, "*,[shard]", q.Get("fl"))
			assert.Equal(t, "-1", q.Get("facet.limit"))
			assert.Equal(t, []string{"type"}, q["facet.field"])
			assert.Equal(t, "0", q.Get("f.time.facet.mincount"))
			assert.Equal(t, "+1YEAR", q.Get("facet.range.gap"))
			assert.Equal(t, "localhost:8983/solr/statistics,localhost:8983/solr/statistics-2019", q.Get("shards"))
			return httpmock.NewStringResponse(200, `{
				"response": {"numFound": 2, "docs": [
					{"uid": "u1", "type": 2, "isBot": false, "owningColl": ["c1", "c2"], "[shard]": "localhost:8983/solr/statistics"},
					{"uid": "u2", "type": 3, "_version_": 1700000000000000000}
				]},
				"nextCursorMark": "AoE",
				"facet_counts": {
					"facet_queries": {},
					"facet_fields": {"type": ["2", 1, "3", 1]},
					"facet_ranges": {"time": {"counts": ["2019-01-01T00:00:00Z", 2, "2020-01-01T00:00:00Z", 0]}}
				}
			}`), nil
		},
	)
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	resp, err := c.Select(context.Background(), "statistics", save.SelectRequest{
		Rows:           10,
		CursorMark:     save.CursorStart,
		FacetFields:    []string{"type"},
		WithShardField: true,
		RangeFacet: &save.RangeFacet{
			Field: "time",
			Start: start,
			End:   start.AddDate(2, 0, 0),
			Gap:   save.Gap{Unit: save.GapYear, Count: 1},
		},
		Shards: []string{
			c.ShardAddress("statistics"),
			c.ShardAddress("statistics-2019"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.NumFound)
	assert.Equal(t, "AoE", resp.NextCursorMark)
	require.Len(t, resp.Docs, 2)
	assert.Equal(t, "2", resp.Docs[0].Get("type"))
	assert.Equal(t, "false", resp.Docs[0].Get("isBot"))
	assert.Equal(t, []string{"c1", "c2"}, resp.Docs[0].GetAll("owningColl"))
	assert.Equal(t, "1700000000000000000", resp.Docs[1].Get(record.FieldVersion))
	assert.Equal(t, []save.FacetCount{{Value: "2", Count: 1}, {Value: "3", Count: 1}}, resp.FacetFields["type"])
	assert.Equal(t, int64(2), resp.RangeFacets["time"][0].Count)
}

func TestSelectReportsSolrError(t *testing.T) {
	c := newTestClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(
		http.MethodGet,
		testServer+"/statistics/select",
		httpmock.NewStringResponder(400, `{"error":{"msg":"undefined field foo","code":400}}`),
	)
	_, err := c.Select(context.Background(), "statistics", save.SelectRequest{Query: query.Term("foo", "x")})
	require.Error(t, err)
	var cerr *ClientError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 400, cerr.Status)
	assert.Equal(t, "undefined field foo", cerr.SolrError.Error.Msg)
}

func TestExportAndImportCSV(t *testing.T) {
	c := newTestClient()
	defer httpmock.DeactivateAndReset()

	csvData := "uid,owningColl\nu1,c1|c2\n"
	httpmock.RegisterResponder(
		http.MethodGet,
		testServer+"/statistics/select",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "csv", q.Get("wt"))
			assert.Equal(t, "|", q.Get("csv.mv.separator"))
			assert.Equal(t, "10000", q.Get("rows"))
			return httpmock.NewStringResponse(200, csvData), nil
		},
	)
	var imported string
	httpmock.RegisterResponder(
		http.MethodPost,
		testServer+"/statistics-2019/update/csv",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "true", q.Get("f.owningColl.split"))
			assert.Equal(t, "|", q.Get("f.owningColl.separator"))
			assert.Equal(t, record.FieldVersion, q.Get("skip"))
			b, _ := io.ReadAll(req.Body)
			imported = string(b)
			return httpmock.NewStringResponse(200, `{}`), nil
		},
	)
	var buf strings.Builder
	err := c.ExportCSV(context.Background(), "statistics", save.ExportRequest{Rows: 10000}, &buf)
	require.NoError(t, err)
	assert.Equal(t, csvData, buf.String())
	err = c.ImportCSV(
		context.Background(),
		"statistics-2019",
		strings.NewReader(buf.String()),
		save.ImportOptions{MultiValued: []string{"owningColl"}},
	)
	require.NoError(t, err)
	assert.Equal(t, csvData, imported)
}

func TestAdminOperations(t *testing.T) {
	c := newTestClient()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(
		http.MethodGet,
		testServer+"/admin/cores",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			switch q.Get("action") {
			case "STATUS":
				return httpmock.NewStringResponse(200, `{"status":{"statistics-2019":{},"statistics":{}}}`), nil
			case "CREATE":
				assert.Equal(t, "statistics-2020", q.Get("name"))
				assert.Equal(t, "statistics", q.Get("configSet"))
				return httpmock.NewStringResponse(200, `{}`), nil
			}
			return httpmock.NewStringResponse(400, `{}`), nil
		},
	)
	httpmock.RegisterResponder(
		http.MethodGet,
		testServer+"/statistics/admin/ping",
		httpmock.NewStringResponder(200, `{"status":"OK"}`),
	)
	httpmock.RegisterResponder(
		http.MethodGet,
		testServer+"/statistics-2021/admin/ping",
		httpmock.NewStringResponder(404, `{"error":{"msg":"no such core","code":404}}`),
	)
	httpmock.RegisterResponder(
		http.MethodGet,
		testServer+"/statistics/schema/fields",
		httpmock.NewStringResponder(200, `{"fields":[{"name":"uid"},{"name":"owningColl","multiValued":true}]}`),
	)

	cores, err := c.ListCores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"statistics", "statistics-2019"}, cores)

	assert.NoError(t, c.Ping(context.Background(), "statistics"))
	assert.ErrorIs(t, c.Ping(context.Background(), "statistics-2021"), save.ErrCoreNotFound)
	assert.NoError(t, c.CreateCore(context.Background(), "statistics-2020"))

	mv, err := c.MultiValuedFields(context.Background(), "statistics")
	require.NoError(t, err)
	assert.Equal(t, []string{"owningColl"}, mv)
}

func TestShardAddress(t *testing.T) {
	c := NewClient(&ConnectionConf{Server: "https://solr.example.org:8443/solr/"})
	assert.Equal(t, "solr.example.org:8443/solr/statistics-2018", c.ShardAddress("statistics-2018"))
}
