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

// Package shardmig moves documents of finished years from the live
// statistics core to per-year cores. Each year is migrated as a whole
// (export, import, commit, delete from live) so an interrupted job
// can be safely started again.
package shardmig

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"ustatproc/notifications"
	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
	"ustatproc/shards"
)

const (
	DefaultPageSize = 10000
	firstYear       = 2000
)

type YearResult struct {
	Year     int    `json:"year"`
	Core     string `json:"core"`
	Exported int64  `json:"exported"`
	Imported int64  `json:"imported"`
}

type Report struct {
	Years []YearResult `json:"years"`
}

func (r Report) Moved() int64 {
	var ans int64
	for _, y := range r.Years {
		ans += y.Exported
	}
	return ans
}

type Job struct {
	store    save.Store
	router   *shards.Router
	fs       afero.Fs
	tempDir  string
	pageSize int
	notifier notifications.Notifier
	nowFn    func() time.Time
}

// NewJob creates a migration job. Exported pages are stored
// as temporary files in tempDir of fs, the directory is removed
// once the job finishes.
func NewJob(
	store save.Store,
	router *shards.Router,
	fs afero.Fs,
	tempDir string,
	notifier notifications.Notifier,
) *Job {
	return &Job{
		store:    store,
		router:   router,
		fs:       fs,
		tempDir:  tempDir,
		pageSize: DefaultPageSize,
		notifier: notifier,
		nowFn:    time.Now,
	}
}

func yearFilter(start time.Time) query.Query {
	return query.TimeRange(record.FieldTime, start, start.AddDate(1, 0, 0))
}

func (job *Job) countInCore(ctx context.Context, core string, filter query.Query) (int64, error) {
	resp, err := job.store.Select(ctx, core, save.SelectRequest{
		Query:   query.All(),
		Filters: []query.Query{filter},
		Rows:    0,
	})
	if err != nil {
		return 0, err
	}
	return resp.NumFound, nil
}

func (job *Job) exportPages(ctx context.Context, year int, filter query.Query, total int64) ([]string, error) {
	files := make([]string, 0, total/int64(job.pageSize)+1)
	for i := 0; int64(i) < total; i += job.pageSize {
		path := filepath.Join(job.tempDir, fmt.Sprintf("temp.%d.%d.csv", year, i))
		f, err := job.fs.Create(path)
		if err != nil {
			return files, fmt.Errorf("failed to create temporary file: %w", err)
		}
		err = job.store.ExportCSV(
			ctx,
			job.router.LiveCore(),
			save.ExportRequest{
				Query:   query.All(),
				Filters: []query.Query{filter},
				Start:   i,
				Rows:    job.pageSize,
			},
			f,
		)
		f.Close()
		if err != nil {
			return files, fmt.Errorf("failed to export documents of %d: %w", year, err)
		}
		files = append(files, path)
	}
	return files, nil
}

func (job *Job) importFiles(ctx context.Context, core string, files []string, multiValued []string) error {
	for _, path := range files {
		f, err := job.fs.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open temporary file: %w", err)
		}
		err = job.store.ImportCSV(ctx, core, f, save.ImportOptions{MultiValued: multiValued})
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to import %s into %s: %w", filepath.Base(path), core, err)
		}
	}
	return nil
}

// migrateYear moves documents of a single year. Documents are removed
// from the live core only after the year core contains all of them.
func (job *Job) migrateYear(ctx context.Context, year int) (YearResult, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	filter := yearFilter(start)
	live := job.router.LiveCore()
	ans := YearResult{Year: year, Core: job.router.YearCoreName(year)}

	total, err := job.countInCore(ctx, live, filter)
	if err != nil {
		return ans, fmt.Errorf("failed to count documents of %d: %w", year, err)
	}
	if total == 0 {
		return ans, nil
	}
	if err := job.router.CreateOrGetShard(ctx, ans.Core); err != nil {
		return ans, err
	}
	fmt.Printf("Moving: %d into core %s\n", total, ans.Core)
	log.Info().Int64("records", total).Str("core", ans.Core).Msg("moving statistics records")

	files, err := job.exportPages(ctx, year, filter, total)
	if err != nil {
		return ans, err
	}
	ans.Exported = total
	multiValued, err := job.store.MultiValuedFields(ctx, live)
	if err != nil {
		return ans, fmt.Errorf("failed to get multi-valued fields: %w", err)
	}
	if err := job.importFiles(ctx, ans.Core, files, multiValued); err != nil {
		return ans, err
	}
	if err := job.store.Commit(ctx, ans.Core); err != nil {
		return ans, fmt.Errorf("failed to commit %s: %w", ans.Core, err)
	}
	ans.Imported, err = job.countInCore(ctx, ans.Core, filter)
	if err != nil {
		return ans, fmt.Errorf("failed to verify %s: %w", ans.Core, err)
	}
	if ans.Imported < total {
		return ans, fmt.Errorf(
			"core %s contains only %d of %d exported records, keeping live records",
			ans.Core, ans.Imported, total)
	}
	if err := job.store.DeleteByQuery(ctx, live, filter); err != nil {
		return ans, fmt.Errorf("failed to delete moved records from %s: %w", live, err)
	}
	if err := job.store.Commit(ctx, live); err != nil {
		return ans, fmt.Errorf("failed to commit %s: %w", live, err)
	}
	log.Info().Int64("records", total).Str("core", ans.Core).Msg("moved statistics records")
	return ans, nil
}

func (job *Job) withTempDir(fn func() error) error {
	if err := job.fs.MkdirAll(job.tempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer func() {
		if err := job.fs.RemoveAll(job.tempDir); err != nil {
			log.Warn().Err(err).Str("path", job.tempDir).Msg("failed to remove temporary directory")
		}
	}()
	return fn()
}

func (job *Job) sendReport(report Report, err error) {
	metadata := map[string]any{"moved": report.Moved()}
	details := make([]string, 0, len(report.Years))
	for _, y := range report.Years {
		details = append(details, fmt.Sprintf("%d: %d of %d records in %s", y.Year, y.Imported, y.Exported, y.Core))
	}
	summary := fmt.Sprintf("moved %d records into %d year cores", report.Moved(), len(report.Years))
	if err != nil {
		summary = fmt.Sprintf("%s, stopped on error: %s", summary, err)
	}
	notifications.SendJobReport(job.notifier, notifications.JobReport{
		Job:      "shard",
		Success:  err == nil,
		Summary:  summary,
		Details:  details,
		Metadata: metadata,
	})
}

// Run migrates all the finished years found in the live core
// (since 2000 up to the end of the previous year).
func (job *Job) Run(ctx context.Context) (Report, error) {
	var report Report
	err := job.withTempDir(func() error {
		start := time.Date(firstYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(job.nowFn().UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		resp, err := job.store.Select(ctx, job.router.LiveCore(), save.SelectRequest{
			Query: query.All(),
			Rows:  0,
			RangeFacet: &save.RangeFacet{
				Field:    record.FieldTime,
				Start:    start,
				End:      end,
				Gap:      save.Gap{Unit: save.GapYear, Count: 1},
				MinCount: 1,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to facet live core by year: %w", err)
		}
		for _, bucket := range resp.RangeFacets[record.FieldTime] {
			if bucket.Count == 0 {
				continue
			}
			bStart, err := time.Parse(time.RFC3339, bucket.Value)
			if err != nil {
				return fmt.Errorf("invalid year bucket %s: %w", bucket.Value, err)
			}
			res, err := job.migrateYear(ctx, bStart.UTC().Year())
			if res.Exported > 0 {
				report.Years = append(report.Years, res)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	job.sendReport(report, err)
	return report, err
}

// MigrateYear moves documents of a single finished year
func (job *Job) MigrateYear(ctx context.Context, year int) (YearResult, error) {
	if year < firstYear || year >= job.nowFn().UTC().Year() {
		return YearResult{}, fmt.Errorf("year %d cannot be migrated", year)
	}
	var ans YearResult
	err := job.withTempDir(func() error {
		var err error
		ans, err = job.migrateYear(ctx, year)
		return err
	})
	report := Report{}
	if ans.Exported > 0 {
		report.Years = append(report.Years, ans)
	}
	job.sendReport(report, err)
	return ans, err
}
