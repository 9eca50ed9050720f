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
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/czcorpus/cnc-gokit/collections"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
)

type rangeFacetResult struct {
	Counts []any `json:"counts"`
}

type selectResult struct {
	Response struct {
		NumFound int64            `json:"numFound"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
	NextCursorMark string `json:"nextCursorMark"`
	FacetCounts    struct {
		FacetQueries map[string]json.Number      `json:"facet_queries"`
		FacetFields  map[string][]any            `json:"facet_fields"`
		FacetRanges  map[string]rangeFacetResult `json:"facet_ranges"`
	} `json:"facet_counts"`
}

func sortParam(sort []save.SortField) string {
	items := make([]string, len(sort))
	for i, s := range sort {
		if s.Desc {
			items[i] = s.Field + " desc"

		} else {
			items[i] = s.Field + " asc"
		}
	}
	return strings.Join(items, ",")
}

func selectParams(req save.SelectRequest) url.Values {
	params := jsonParams()
	params.Set("json.nl", "flat")
	q := req.Query
	if q == nil {
		q = query.All()
	}
	params.Set("q", q.String())
	for _, fq := range req.Filters {
		params.Add("fq", fq.String())
	}
	fields := req.Fields
	if req.WithShardField {
		if len(fields) == 0 {
			fields = []string{"*"}
		}
		fields = append(fields, record.FieldShard)
	}
	if len(fields) > 0 {
		params.Set("fl", strings.Join(fields, ","))
	}
	params.Set("rows", strconv.Itoa(req.Rows))
	sort := req.Sort
	if req.CursorMark != "" {
		params.Set("cursorMark", req.CursorMark)
		hasKey := false
		for _, s := range sort {
			if s.Field == record.FieldUID {
				hasKey = true
			}
		}
		if !hasKey {
			sort = append(sort, save.SortField{Field: record.FieldUID})
		}

	} else {
		params.Set("start", strconv.Itoa(req.Start))
	}
	if len(sort) > 0 {
		params.Set("sort", sortParam(sort))
	}

	if len(req.FacetFields) > 0 || len(req.FacetQueries) > 0 || req.RangeFacet != nil {
		params.Set("facet", "true")
		limit := req.FacetLimit
		if limit <= 0 {
			limit = -1
		}
		params.Set("facet.limit", strconv.Itoa(limit))
		params.Set("facet.mincount", strconv.Itoa(req.FacetMinCount))
	}
	for _, ff := range req.FacetFields {
		params.Add("facet.field", ff)
	}
	for _, fq := range req.FacetQueries {
		params.Add("facet.query", fq.String())
	}
	if rf := req.RangeFacet; rf != nil {
		params.Set("facet.range", rf.Field)
		params.Set("facet.range.start", record.FormatTime(rf.Start))
		params.Set("facet.range.end", record.FormatTime(rf.End))
		params.Set("facet.range.gap", rf.Gap.String())
		params.Set(fmt.Sprintf("f.%s.facet.mincount", rf.Field), strconv.Itoa(rf.MinCount))
	}
	if len(req.Shards) > 0 {
		params.Set("shards", strings.Join(req.Shards, ","))
	}
	return params
}

func valueToStrings(v any) []string {
	switch tv := v.(type) {
	case string:
		return []string{tv}
	case json.Number:
		return []string{tv.String()}
	case bool:
		return []string{strconv.FormatBool(tv)}
	case float64:
		return []string{strconv.FormatFloat(tv, 'f', -1, 64)}
	case []any:
		ans := make([]string, 0, len(tv))
		for _, item := range tv {
			ans = append(ans, valueToStrings(item)...)
		}
		return ans
	}
	return []string{}
}

func importDoc(src map[string]any) record.Doc {
	doc := make(record.Doc, len(src))
	for k, v := range src {
		doc.Set(k, valueToStrings(v)...)
	}
	return doc
}

// importFlatCounts parses the flat list form [value1, count1, value2, count2, ...]
func importFlatCounts(flat []any) ([]save.FacetCount, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("invalid facet counts list of odd size %d", len(flat))
	}
	ans := make([]save.FacetCount, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		value, ok := flat[i].(string)
		if !ok {
			return nil, fmt.Errorf("invalid facet value type %T", flat[i])
		}
		num, ok := flat[i+1].(json.Number)
		if !ok {
			return nil, fmt.Errorf("invalid facet count type %T", flat[i+1])
		}
		count, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid facet count: %w", err)
		}
		ans = append(ans, save.FacetCount{Value: value, Count: count})
	}
	return ans, nil
}

func (c *Client) Select(ctx context.Context, core string, req save.SelectRequest) (*save.SelectResponse, error) {
	var res selectResult
	if err := c.doJSON(ctx, http.MethodGet, corePath(core, "/select"), selectParams(req), nil, &res); err != nil {
		return nil, err
	}
	ans := &save.SelectResponse{
		NumFound:       res.Response.NumFound,
		Docs:           make([]record.Doc, len(res.Response.Docs)),
		NextCursorMark: res.NextCursorMark,
	}
	for i, d := range res.Response.Docs {
		ans.Docs[i] = importDoc(d)
	}
	if len(req.FacetFields) > 0 {
		ans.FacetFields = make(map[string][]save.FacetCount)
		for field, flat := range res.FacetCounts.FacetFields {
			if !collections.SliceContains(req.FacetFields, field) {
				continue
			}
			counts, err := importFlatCounts(flat)
			if err != nil {
				return nil, fmt.Errorf("failed to read facet %s: %w", field, err)
			}
			ans.FacetFields[field] = counts
		}
	}
	if len(req.FacetQueries) > 0 {
		ans.FacetQueries = make(map[string]int64)
		for fq, num := range res.FacetCounts.FacetQueries {
			count, err := num.Int64()
			if err != nil {
				return nil, fmt.Errorf("failed to read facet query %s: %w", fq, err)
			}
			ans.FacetQueries[fq] = count
		}
	}
	if req.RangeFacet != nil {
		ans.RangeFacets = make(map[string][]save.FacetCount)
		for field, rng := range res.FacetCounts.FacetRanges {
			counts, err := importFlatCounts(rng.Counts)
			if err != nil {
				return nil, fmt.Errorf("failed to read range facet %s: %w", field, err)
			}
			ans.RangeFacets[field] = counts
		}
	}
	return ans, nil
}
