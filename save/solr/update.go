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
	"net/http"

	"ustatproc/query"
	"ustatproc/record"
)

type deleteQuery struct {
	Query string `json:"query"`
}

type deleteObj struct {
	Delete deleteQuery `json:"delete"`
}

type commitObj struct {
	Commit struct{} `json:"commit"`
}

// docToJSON encodes single-valued fields as scalars and
// multi-valued ones as arrays
func docToJSON(doc record.Doc) map[string]any {
	ans := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == record.FieldVersion || k == record.FieldShard {
			continue
		}
		switch len(v) {
		case 0:
		case 1:
			ans[k] = v[0]
		default:
			ans[k] = v
		}
	}
	return ans
}

func (c *Client) Add(ctx context.Context, core string, docs ...record.Doc) error {
	if len(docs) == 0 {
		return nil
	}
	body := make([]map[string]any, len(docs))
	for i, d := range docs {
		body[i] = docToJSON(d)
	}
	return c.doJSON(ctx, http.MethodPost, corePath(core, "/update"), jsonParams(), body, nil)
}

func (c *Client) Commit(ctx context.Context, core string) error {
	return c.doJSON(ctx, http.MethodPost, corePath(core, "/update"), jsonParams(), commitObj{}, nil)
}

func (c *Client) DeleteByQuery(ctx context.Context, core string, q query.Query) error {
	return c.doJSON(
		ctx,
		http.MethodPost,
		corePath(core, "/update"),
		jsonParams(),
		deleteObj{Delete: deleteQuery{Query: q.String()}},
		nil,
	)
}
