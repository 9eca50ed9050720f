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

	"github.com/rs/zerolog/log"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
)

const markBatchSize = 100

// SpiderSource provides definitions of known spiders
type SpiderSource interface {
	AgentIsBot(userAgent string) bool
	SpiderIPPrefixes() []string
}

// BotRemover deletes documents of spiders from all the shards
type BotRemover interface {
	DeleteRobotsByIsBotFlag(ctx context.Context) error
	DeleteRobotsByIP(ctx context.Context) error
}

// Purge retroactively applies the current spider definitions
// to already stored documents.
type Purge struct {
	engine  *Engine
	spiders SpiderSource
	remover BotRemover
	dryRun  bool
}

func NewPurge(engine *Engine, spiders SpiderSource, remover BotRemover, dryRun bool) *Purge {
	return &Purge{
		engine:  engine,
		spiders: spiders,
		remover: remover,
		dryRun:  dryRun,
	}
}

func notBot() query.Query {
	return query.Not(query.Term(record.FieldIsBot, "true"))
}

func markAsBot() Fields {
	return Fields{record.FieldIsBot: {"true"}}
}

// MarkRobotsByIP sets isBot=true for documents recorded from
// known spider addresses. It returns the number of marked documents.
func (p *Purge) MarkRobotsByIP(ctx context.Context) (int, error) {
	var total int
	for _, ip := range p.spiders.SpiderIPPrefixes() {
		q := query.And(IPQuery(ip), notBot())
		if p.dryRun {
			cnt, err := p.engine.Count(ctx, q)
			if err != nil {
				return total, err
			}
			total += int(cnt)
			continue
		}
		res, err := p.engine.Update(ctx, q, ActionReplace, markAsBot(), true)
		total += res.Updated
		if err != nil {
			return total, fmt.Errorf("failed to mark documents of %s: %w", ip, err)
		}
		if res.Updated > 0 {
			log.Info().Str("ip", ip).Int("documents", res.Updated).Msg("marked documents as bots")
		}
	}
	return total, nil
}

// MarkRobotsByUserAgent sets isBot=true for documents with user agents
// matching spider definitions. Agents are classified by the detector
// so only uids of matching documents are collected while scanning.
func (p *Purge) MarkRobotsByUserAgent(ctx context.Context) (int, error) {
	q := query.And(query.Exists(record.FieldUserAgent), notBot())
	uids := make([]string, 0, markBatchSize)
	cursor := save.CursorStart
	for {
		resp, err := p.engine.router.QueryAcrossShards(ctx, save.SelectRequest{
			Query:      q,
			Fields:     []string{record.FieldUID, record.FieldUserAgent},
			Rows:       p.engine.pageSize * 100,
			CursorMark: cursor,
			Sort:       []save.SortField{{Field: record.FieldUID}},
		})
		if err != nil {
			return 0, fmt.Errorf("failed to scan user agents: %w", err)
		}
		for _, doc := range resp.Docs {
			if p.spiders.AgentIsBot(doc.Get(record.FieldUserAgent)) {
				uids = append(uids, doc.Get(record.FieldUID))
			}
		}
		if resp.NextCursorMark == "" || resp.NextCursorMark == cursor || len(resp.Docs) == 0 {
			break
		}
		cursor = resp.NextCursorMark
	}
	if p.dryRun {
		return len(uids), nil
	}
	var total int
	for i := 0; i < len(uids); i += markBatchSize {
		batch := uids[i:min(i+markBatchSize, len(uids))]
		res, err := p.engine.Update(ctx, query.In(record.FieldUID, batch...), ActionReplace, markAsBot(), true)
		total += res.Updated
		if err != nil {
			return total, fmt.Errorf("failed to mark documents by user agent: %w", err)
		}
	}
	log.Info().Int("documents", total).Msg("marked documents with spider user agents as bots")
	return total, nil
}

// DeleteBots removes documents flagged as bots and documents
// recorded from spider addresses. In the dry run mode, it only
// returns the number of documents to be removed.
func (p *Purge) DeleteBots(ctx context.Context) (int64, error) {
	flagged := query.Term(record.FieldIsBot, "true")
	byIP := make([]query.Query, 0, 10)
	for _, ip := range p.spiders.SpiderIPPrefixes() {
		byIP = append(byIP, IPQuery(ip))
	}
	q := flagged
	if len(byIP) > 0 {
		q = query.Or(flagged, query.Or(byIP...))
	}
	cnt, err := p.engine.Count(ctx, q)
	if err != nil {
		return 0, err
	}
	if p.dryRun {
		return cnt, nil
	}
	if err := p.remover.DeleteRobotsByIsBotFlag(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete documents flagged as bots: %w", err)
	}
	if len(byIP) > 0 {
		if err := p.remover.DeleteRobotsByIP(ctx); err != nil {
			return 0, fmt.Errorf("failed to delete documents of spider addresses: %w", err)
		}
	}
	log.Info().Int64("documents", cnt).Msg("deleted documents of bots")
	return cnt, nil
}
