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
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"ustatproc/save"
)

var _ save.Store = (*Client)(nil)

type coreStatusResult struct {
	Status map[string]any `json:"status"`
}

type pingResult struct {
	Status string `json:"status"`
}

type schemaField struct {
	Name        string `json:"name"`
	MultiValued bool   `json:"multiValued"`
}

type schemaFieldsResult struct {
	Fields []schemaField `json:"fields"`
}

func (c *Client) ListCores(ctx context.Context) ([]string, error) {
	params := jsonParams()
	params.Set("action", "STATUS")
	var res coreStatusResult
	if err := c.doJSON(ctx, http.MethodGet, "/admin/cores", params, nil, &res); err != nil {
		return nil, fmt.Errorf("failed to list cores: %w", err)
	}
	ans := make([]string, 0, len(res.Status))
	for name := range res.Status {
		ans = append(ans, name)
	}
	sort.Strings(ans)
	return ans, nil
}

func (c *Client) Ping(ctx context.Context, core string) error {
	var res pingResult
	err := c.doJSON(ctx, http.MethodGet, corePath(core, "/admin/ping"), jsonParams(), nil, &res)
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s", save.ErrCoreNotFound, core)

	} else if err != nil {
		return err
	}
	if res.Status != "OK" {
		return fmt.Errorf("core %s reports status %s", core, res.Status)
	}
	return nil
}

// CreateCore creates a core using the configured config set.
// The instance directory is named after the core.
func (c *Client) CreateCore(ctx context.Context, core string) error {
	params := jsonParams()
	params.Set("action", "CREATE")
	params.Set("name", core)
	params.Set("instanceDir", core)
	params.Set("configSet", c.configSet)
	if err := c.doJSON(ctx, http.MethodGet, "/admin/cores", params, nil, nil); err != nil {
		return fmt.Errorf("failed to create core %s: %w", core, err)
	}
	log.Info().Str("core", core).Str("configSet", c.configSet).Msg("created statistics core")
	return nil
}

func (c *Client) MultiValuedFields(ctx context.Context, core string) ([]string, error) {
	params := jsonParams()
	params.Set("showDefaults", "true")
	var res schemaFieldsResult
	if err := c.doJSON(ctx, http.MethodGet, corePath(core, "/schema/fields"), params, nil, &res); err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", core, err)
	}
	ans := make([]string, 0, len(res.Fields))
	for _, f := range res.Fields {
		if f.MultiValued {
			ans = append(ans, f.Name)
		}
	}
	return ans, nil
}

// ShardAddress produces the host/path/core form Solr expects
// in the shards parameter (no scheme).
func (c *Client) ShardAddress(core string) string {
	addr := c.server
	if u, err := url.Parse(c.server); err == nil && u.Host != "" {
		addr = u.Host + u.Path
	}
	return strings.TrimRight(addr, "/") + "/" + core
}
