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

// Package anonymize masks IP addresses and DNS names of statistics
// documents older than a configured threshold.
package anonymize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"ustatproc/docupdate"
	"ustatproc/notifications"
	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
	"ustatproc/shards"
)

const DefaultTimeThresholdDays = 90

type Report struct {
	Total   int64    `json:"total"`
	Updated int      `json:"updated"`
	Failed  []string `json:"failed"`
}

func (r Report) Success() bool {
	return int64(r.Updated) == r.Total
}

type Job struct {
	engine        *docupdate.Engine
	router        *shards.Router
	masks         record.Masks
	thresholdDays int
	opts          Options
	notifier      notifications.Notifier
	nowFn         func() time.Time
}

func NewJob(
	engine *docupdate.Engine,
	router *shards.Router,
	masks record.Masks,
	thresholdDays int,
	opts Options,
	notifier notifications.Notifier,
) *Job {
	if thresholdDays <= 0 {
		thresholdDays = DefaultTimeThresholdDays
	}
	return &Job{
		engine:        engine,
		router:        router,
		masks:         masks.WithDefaults(),
		thresholdDays: thresholdDays,
		opts:          opts,
		notifier:      notifier,
		nowFn:         time.Now,
	}
}

// Query matches documents with an IP address recorded before
// the threshold and not anonymized yet
func (job *Job) Query() query.Query {
	threshold := job.nowFn().AddDate(0, 0, -job.thresholdDays)
	return query.And(
		query.Exists(record.FieldIP),
		query.TimeRange(record.FieldTime, time.Time{}, threshold),
		query.Not(query.Term(record.FieldDNS, job.masks.StoredDNSMask())),
	)
}

type roundState struct {
	mu      sync.Mutex
	updated int
	failed  []string
}

func (rs *roundState) addFailed(uid string) {
	rs.mu.Lock()
	rs.failed = append(rs.failed, uid)
	rs.mu.Unlock()
}

func (rs *roundState) addUpdated() {
	rs.mu.Lock()
	rs.updated++
	rs.mu.Unlock()
}

func (job *Job) anonymizeDoc(ctx context.Context, doc record.Doc, state *roundState) {
	uid := doc.Get(record.FieldUID)
	masked, err := job.masks.MaskIP(doc.Get(record.FieldIP))
	if err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("failed to mask IP address, keeping document unchanged")
		state.addFailed(uid)
		return
	}
	_, err = job.engine.Update(
		ctx,
		query.Term(record.FieldUID, uid),
		docupdate.ActionReplace,
		docupdate.Fields{
			record.FieldIP:  {masked},
			record.FieldDNS: {job.masks.StoredDNSMask()},
		},
		false,
	)
	if err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("failed to anonymize document")
		state.addFailed(uid)
		return
	}
	state.addUpdated()
}

func (job *Job) runRound(ctx context.Context, q query.Query) (int, *roundState, error) {
	resp, err := job.router.QueryAcrossShards(ctx, save.SelectRequest{
		Query:  q,
		Fields: []string{record.FieldUID, record.FieldIP},
		Rows:   job.opts.Batch,
		Sort:   []save.SortField{{Field: record.FieldUID}},
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to fetch documents to anonymize: %w", err)
	}
	state := &roundState{}
	if len(resp.Docs) == 0 {
		return 0, state, nil
	}
	var grp errgroup.Group
	grp.SetLimit(job.opts.Threads)
	for _, doc := range resp.Docs {
		doc := doc
		grp.Go(func() error {
			job.anonymizeDoc(ctx, doc, state)
			return nil
		})
	}
	grp.Wait()
	if err := job.engine.Commit(ctx); err != nil {
		return len(resp.Docs), state, fmt.Errorf("failed to commit anonymized documents: %w", err)
	}
	return len(resp.Docs), state, nil
}

func (job *Job) sleep(ctx context.Context) error {
	if job.opts.SleepMs <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(job.opts.SleepMs) * time.Millisecond):
		return nil
	}
}

// Run anonymizes matching documents round by round until none
// is left. Documents which cannot be anonymized are skipped in following
// rounds so each round either processes new documents or ends the job.
func (job *Job) Run(ctx context.Context) (Report, error) {
	var report Report
	base := job.Query()
	total, err := job.engine.Count(ctx, base)
	if err != nil {
		return report, fmt.Errorf("failed to count documents to anonymize: %w", err)
	}
	report.Total = total
	fmt.Printf("Found %d documents to anonymize\n", total)
	log.Info().Int64("total", total).Str("query", base.String()).Msg("starting anonymization")

	for round := 1; ; round++ {
		q := base
		if len(report.Failed) > 0 {
			q = query.And(base, query.Not(query.In(record.FieldUID, report.Failed...)))
		}
		fetched, state, err := job.runRound(ctx, q)
		if state != nil {
			report.Updated += state.updated
			report.Failed = append(report.Failed, state.failed...)
		}
		if err != nil {
			job.sendReport(report, err)
			return report, err
		}
		if fetched == 0 {
			break
		}
		fmt.Printf("Round %d: %d of %d documents updated\n", round, report.Updated, total)
		log.Info().
			Int("round", round).
			Int("roundUpdated", state.updated).
			Int("updated", report.Updated).
			Int64("total", total).
			Msg("anonymization round finished")
		if state.updated == 0 && len(state.failed) == 0 {
			log.Warn().Int("round", round).Msg("no progress in the round, stopping")
			break
		}
		if err := job.sleep(ctx); err != nil {
			job.sendReport(report, err)
			return report, err
		}
	}
	if report.Success() {
		fmt.Printf("%d of %d documents updated\n", report.Updated, total)
		log.Info().Int("updated", report.Updated).Msg("anonymization finished")

	} else {
		fmt.Printf("Only %d of %d documents updated\n", report.Updated, total)
		log.Warn().
			Int("updated", report.Updated).
			Int64("total", total).
			Int("failed", len(report.Failed)).
			Msg("anonymization finished, some documents were not updated")
	}
	job.sendReport(report, nil)
	return report, nil
}

func (job *Job) sendReport(report Report, err error) {
	summary := fmt.Sprintf("%d of %d documents updated", report.Updated, report.Total)
	if err != nil {
		summary = fmt.Sprintf("%s, stopped on error: %s", summary, err)
	}
	notifications.SendJobReport(job.notifier, notifications.JobReport{
		Job:     "anonymize",
		Success: err == nil && report.Success(),
		Summary: summary,
		Metadata: map[string]any{
			"total":   report.Total,
			"updated": report.Updated,
			"failed":  len(report.Failed),
		},
	})
}
