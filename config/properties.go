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

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// Properties provides typed access to DSpace style configuration
// keys (e.g. solr-statistics.autoCommit).
type Properties struct {
	k *koanf.Koanf
}

func NewProperties(values map[string]any) *Properties {
	ans := &Properties{k: koanf.New(".")}
	for key, v := range values {
		if err := ans.k.Set(key, v); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("ignoring invalid property")
		}
	}
	return ans
}

func (p *Properties) Has(key string) bool {
	return p.k.Exists(key)
}

func (p *Properties) Bool(key string, dflt bool) bool {
	if !p.k.Exists(key) {
		return dflt
	}
	return p.k.Bool(key)
}

func (p *Properties) Int(key string, dflt int) int {
	if !p.k.Exists(key) {
		return dflt
	}
	return p.k.Int(key)
}

func (p *Properties) String(key string, dflt string) string {
	if !p.k.Exists(key) {
		return dflt
	}
	return p.k.String(key)
}

// Strings returns a list value. A single string value is split
// by commas.
func (p *Properties) Strings(key string, dflt []string) []string {
	if !p.k.Exists(key) {
		return dflt
	}
	if v, ok := p.k.Get(key).(string); ok {
		items := strings.Split(v, ",")
		ans := make([]string, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				ans = append(ans, item)
			}
		}
		return ans
	}
	return p.k.Strings(key)
}

// StringMap returns all the properties as flat keys with values
// converted to strings (lists are joined by commas)
func (p *Properties) StringMap() map[string]string {
	all := p.k.All()
	ans := make(map[string]string, len(all))
	for key, v := range all {
		switch tv := v.(type) {
		case string:
			ans[key] = tv
		case bool:
			ans[key] = strconv.FormatBool(tv)
		case []string:
			ans[key] = strings.Join(tv, ",")
		case []any:
			items := make([]string, len(tv))
			for i, item := range tv {
				items[i] = fmt.Sprint(item)
			}
			ans[key] = strings.Join(items, ",")
		default:
			ans[key] = fmt.Sprint(tv)
		}
	}
	return ans
}

// Properties exposes the configuration under the DSpace keys
// together with the custom properties section
func (c *Main) Properties() *Properties {
	values := map[string]any{
		"logBots":                               c.UsageStatistics.LogBots,
		"useProxies":                            c.UsageStatistics.UseProxies,
		"usage-statistics.shardedByYear":        c.UsageStatistics.ShardedByYear,
		"solr-statistics.server":                c.SolrStatistics.Server,
		"solr-statistics.core":                  c.SolrStatistics.Core,
		"solr-statistics.autoCommit":            c.SolrStatistics.AutoCommit,
		"solr-statistics.query.filter.isBot":    c.SolrStatistics.QueryFilter.IsBot,
		"solr-statistics.query.filter.spiderIp": c.SolrStatistics.QueryFilter.SpiderIP,
		"solr-statistics.query.filter.bundles":  c.SolrStatistics.QueryFilter.Bundles,
		"anonymize_statistics.time_threshold":   c.Anonymize.TimeThreshold,
		"anonymize_statistics.anonymize_on_log": c.Anonymize.AnonymizeOnLog,
		"anonymize_statistics.ip_v4_mask":       c.Anonymize.Masks.IPv4,
		"anonymize_statistics.ip_v6_mask":       c.Anonymize.Masks.IPv6,
		"anonymize_statistics.dns_mask":         c.Anonymize.Masks.DNS,
	}
	for key, v := range c.CustomProperties {
		values[key] = v
	}
	return NewProperties(values)
}
