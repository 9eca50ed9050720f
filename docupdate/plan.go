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

package docupdate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ustatproc/query"
	"ustatproc/record"
)

// Filter specifies documents an update plan applies to.
// Non-empty attributes are combined by logical conjunction.
type Filter struct {
	Disabled       bool   `json:"disabled"`
	FromDate       string `json:"fromDate"`
	ToDate         string `json:"toDate"`
	IPAddress      string `json:"ipAddress"`
	UserAgent      string `json:"userAgent"`
	StatisticsType string `json:"statisticsType"`
	ObjectType     string `json:"objectType"`
	ObjectID       string `json:"objectId"`
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func (f Filter) Validate() error {
	if _, err := parseDate(f.FromDate); err != nil {
		return fmt.Errorf("invalid fromDate: %w", err)
	}
	if _, err := parseDate(f.ToDate); err != nil {
		return fmt.Errorf("invalid toDate: %w", err)
	}
	if f.StatisticsType != "" {
		if err := record.StatisticsType(f.StatisticsType).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IPQuery matches an address or a dotted address prefix (e.g. "66.249.")
func IPQuery(ip string) query.Query {
	if strings.HasSuffix(ip, ".") || strings.HasSuffix(ip, ":") {
		return query.Prefix(record.FieldIP, ip)
	}
	return query.Term(record.FieldIP, ip)
}

// Query converts the filter into a store query. An empty filter
// matches all the documents.
func (f Filter) Query() (query.Query, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	items := make([]query.Query, 0, 6)
	if f.FromDate != "" || f.ToDate != "" {
		from, _ := parseDate(f.FromDate)
		to, _ := parseDate(f.ToDate)
		items = append(items, query.TimeRange(record.FieldTime, from, to))
	}
	if f.IPAddress != "" {
		items = append(items, IPQuery(f.IPAddress))
	}
	if f.UserAgent != "" {
		items = append(items, query.Term(record.FieldUserAgent, f.UserAgent))
	}
	if f.StatisticsType != "" {
		items = append(items, query.Term(record.FieldStatisticsType, f.StatisticsType))
	}
	if f.ObjectType != "" {
		items = append(items, query.Term(record.FieldType, f.ObjectType))
	}
	if f.ObjectID != "" {
		items = append(items, query.Term(record.FieldID, f.ObjectID))
	}
	switch len(items) {
	case 0:
		return query.All(), nil
	case 1:
		return items[0], nil
	}
	return query.And(items...), nil
}

// PlanConf describes a bulk update of stored documents. Each of
// the filters is applied separately with the same action and fields.
type PlanConf struct {
	Filters []Filter `json:"filters"`
	Action  Action   `json:"action"`
	Fields  Fields   `json:"fields"`
}

func (conf *PlanConf) Validate() error {
	if conf.Action == "" {
		log.Warn().
			Str("default", string(ActionReplace)).
			Msg("recordUpdate.action not specified, using default")
		conf.Action = ActionReplace
	}
	if err := conf.Action.Validate(); err != nil {
		return fmt.Errorf("recordUpdate: %w", err)
	}
	if len(conf.Fields) == 0 {
		return fmt.Errorf("recordUpdate: no fields to update")
	}
	for field := range conf.Fields {
		switch field {
		case record.FieldUID, record.FieldVersion, record.FieldShard:
			return fmt.Errorf("recordUpdate: field %s cannot be updated", field)
		}
	}
	for i, filter := range conf.Filters {
		if err := filter.Validate(); err != nil {
			return fmt.Errorf("recordUpdate filter #%d: %w", i, err)
		}
	}
	return nil
}

// Overview describes the plan in a human readable form
func (conf *PlanConf) Overview() string {
	var buff strings.Builder
	buff.WriteString(fmt.Sprintf("action: %s\n", conf.Action))
	for field, values := range conf.Fields {
		buff.WriteString(fmt.Sprintf("  %s: %v\n", field, values))
	}
	for i, filter := range conf.Filters {
		q, err := filter.Query()
		if err != nil {
			buff.WriteString(fmt.Sprintf("%d) invalid filter: %s\n", i+1, err))
			continue
		}
		state := ""
		if filter.Disabled {
			state = " (disabled)"
		}
		buff.WriteString(fmt.Sprintf("%d) %s%s\n", i+1, q, state))
	}
	return buff.String()
}

// RunPlan applies the plan filter by filter. In the dry run mode,
// only the numbers of matching documents are reported.
func (e *Engine) RunPlan(ctx context.Context, conf PlanConf, dryRun bool) (Result, error) {
	var total Result
	for i, filter := range conf.Filters {
		if filter.Disabled {
			log.Info().Int("filter", i).Msg("skipping disabled filter")
			continue
		}
		q, err := filter.Query()
		if err != nil {
			return total, err
		}
		if dryRun {
			cnt, err := e.Count(ctx, q)
			if err != nil {
				return total, err
			}
			total.Matched += cnt
			fmt.Printf("filter #%d (%s): %d matching documents\n", i, q, cnt)
			continue
		}
		res, err := e.Update(ctx, q, conf.Action, conf.Fields, true)
		total.Matched += res.Matched
		total.Updated += res.Updated
		total.Lost = append(total.Lost, res.Lost...)
		if err != nil {
			return total, fmt.Errorf("filter #%d: %w", i, err)
		}
		fmt.Printf("filter #%d (%s): %d of %d documents updated\n", i, q, res.Updated, res.Matched)
	}
	return total, nil
}
