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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"ustatproc/content"
	"ustatproc/record"
)

type objectRef struct {
	Type content.ObjectType `json:"type"`
	ID   string             `json:"id"`
}

// RecordedEvent is a usage event as delivered by a web application
// (one JSON object per line). Object references are resolved via
// a content provider.
type RecordedEvent struct {
	StatisticsType record.StatisticsType `json:"statisticsType"`
	Object         *objectRef            `json:"object"`
	EPersonID      string                `json:"epersonId"`

	RemoteIP      string            `json:"ip"`
	XForwardedFor string            `json:"xForwardedFor"`
	UserAgent     string            `json:"userAgent"`
	Referrer      string            `json:"referrer"`
	Headers       map[string]string `json:"headers"`

	Queries   []string   `json:"queries"`
	Scope     *objectRef `json:"scope"`
	RPP       *int       `json:"rpp"`
	Page      *int       `json:"page"`
	SortBy    string     `json:"sortBy"`
	SortOrder string     `json:"sortOrder"`

	WorkflowItemID string   `json:"workflowItemId"`
	Step           string   `json:"step"`
	PreviousStep   string   `json:"previousStep"`
	OwnerGroups    []string `json:"ownerGroups"`
	OwnerEPersons  []string `json:"ownerEPersons"`
	Submitter      string   `json:"submitter"`
	Actor          string   `json:"actor"`
}

func (ev *RecordedEvent) clientContext() ClientContext {
	return ClientContext{
		RemoteIP:      ev.RemoteIP,
		XForwardedFor: ev.XForwardedFor,
		UserAgent:     ev.UserAgent,
		Referrer:      ev.Referrer,
		Headers:       ev.Headers,
	}
}

func intOrUnknown(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

func findRef(ctx context.Context, provider content.Provider, ref *objectRef) (content.Object, error) {
	if ref == nil {
		return nil, nil
	}
	if err := ref.Type.Validate(); err != nil {
		return nil, err
	}
	return provider.Find(ctx, ref.Type, ref.ID)
}

// Post passes the event to a respective Post* method of the logger
func (ev *RecordedEvent) Post(ctx context.Context, provider content.Provider, logger *Logger) error {
	obj, err := findRef(ctx, provider, ev.Object)
	if err != nil {
		return fmt.Errorf("failed to resolve event object: %w", err)
	}
	cc := ev.clientContext()
	switch ev.StatisticsType {
	case record.StatsTypeView:
		if obj == nil {
			return fmt.Errorf("view event without an object")
		}
		return logger.PostView(ctx, obj, cc, ev.EPersonID)
	case record.StatsTypeSearch, record.StatsTypeSearchResult:
		scope, err := findRef(ctx, provider, ev.Scope)
		if err != nil {
			return fmt.Errorf("failed to resolve search scope: %w", err)
		}
		search := SearchEvent{
			Queries:   ev.Queries,
			Scope:     scope,
			Result:    obj,
			RPP:       intOrUnknown(ev.RPP),
			Page:      intOrUnknown(ev.Page),
			SortBy:    ev.SortBy,
			SortOrder: ev.SortOrder,
		}
		return logger.PostSearch(ctx, search, cc, ev.EPersonID)
	case record.StatsTypeWorkflow:
		wf := WorkflowEvent{
			Item:           obj,
			WorkflowItemID: ev.WorkflowItemID,
			Step:           ev.Step,
			PreviousStep:   ev.PreviousStep,
			OwnerGroups:    ev.OwnerGroups,
			OwnerEPersons:  ev.OwnerEPersons,
			Submitter:      ev.Submitter,
			Actor:          ev.Actor,
		}
		return logger.PostWorkflow(ctx, wf, cc, ev.EPersonID)
	case record.StatsTypeLogin:
		return logger.PostLogin(ctx, cc, ev.EPersonID)
	default:
		return fmt.Errorf("unsupported statistics type '%s'", ev.StatisticsType)
	}
}

// ReplayResult summarizes a replay of recorded events. Accepted
// events include the ones dropped as coming from bots.
type ReplayResult struct {
	Lines  int
	Accepted int
	Failed int
}

// Replay reads recorded events (JSON lines) and posts them one by one.
// Malformed lines and failed events are logged and counted, only
// a read error stops the processing.
func Replay(ctx context.Context, src io.Reader, provider content.Provider, logger *Logger) (ReplayResult, error) {
	var ans ReplayResult
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ans, ctx.Err()
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		ans.Lines++
		var ev RecordedEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			log.Error().Err(err).Int("line", ans.Lines).Msg("failed to parse recorded event, skipping")
			ans.Failed++
			continue
		}
		if err := ev.Post(ctx, provider, logger); err != nil {
			log.Error().Err(err).Int("line", ans.Lines).Msg("failed to post recorded event")
			ans.Failed++
			continue
		}
		ans.Accepted++
	}
	if err := sc.Err(); err != nil {
		return ans, fmt.Errorf("failed to read recorded events: %w", err)
	}
	return ans, nil
}
