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
	"fmt"
	"io"
	"net/http"
	"strconv"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
)

const csvEscape = "\\"

func (c *Client) ExportCSV(ctx context.Context, core string, req save.ExportRequest, w io.Writer) error {
	q := req.Query
	if q == nil {
		q = query.All()
	}
	params := make(map[string][]string)
	params["wt"] = []string{"csv"}
	params["q"] = []string{q.String()}
	for _, fq := range req.Filters {
		params["fq"] = append(params["fq"], fq.String())
	}
	params["start"] = []string{strconv.Itoa(req.Start)}
	params["rows"] = []string{strconv.Itoa(req.Rows)}
	params["sort"] = []string{record.FieldUID + " asc"}
	params["csv.mv.separator"] = []string{save.MultiValueSeparator}
	params["csv.escape"] = []string{csvEscape}
	resp, err := c.do(ctx, http.MethodGet, corePath(core, "/select"), params, "", nil)
	if err != nil {
		return fmt.Errorf("failed to export CSV from %s: %w", core, err)
	}
	if _, err := w.Write(resp); err != nil {
		return fmt.Errorf("failed to write exported CSV: %w", err)
	}
	return nil
}

func (c *Client) ImportCSV(ctx context.Context, core string, r io.Reader, opts save.ImportOptions) error {
	params := jsonParams()
	params.Set("escape", csvEscape)
	params.Set("skip", record.FieldVersion)
	for _, field := range opts.MultiValued {
		params.Set(fmt.Sprintf("f.%s.split", field), "true")
		params.Set(fmt.Sprintf("f.%s.separator", field), save.MultiValueSeparator)
		params.Set(fmt.Sprintf("f.%s.escape", field), csvEscape)
	}
	if _, err := c.do(ctx, http.MethodPost, corePath(core, "/update/csv"), params, "application/csv", r); err != nil {
		return fmt.Errorf("failed to import CSV to %s: %w", core, err)
	}
	return nil
}
