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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"ustatproc/anonymize"
	"ustatproc/clientinfo"
	"ustatproc/config"
	"ustatproc/content"
	"ustatproc/ctype"
	"ustatproc/docupdate"
	"ustatproc/healthchk"
	"ustatproc/notifications"
	"ustatproc/record"
	"ustatproc/save/solr"
	"ustatproc/scripting"
	"ustatproc/shardmig"
	"ustatproc/shards"
	"ustatproc/stats"
	"ustatproc/usage"
)

// statsEnv contains components shared by all the actions
// working with the statistics store
type statsEnv struct {
	client   *solr.Client
	router   *shards.Router
	service  *stats.Service
	spiders  *ctype.SpiderDetector
	notifier notifications.Notifier
}

func loadSpiders(conf *config.Main) (*ctype.SpiderDetector, error) {
	if conf.UsageStatistics.SpidersPath == "" {
		log.Warn().Msg("usageStatistics.spidersPath not set, using built-in spider definitions")
		return ctype.NewSpiderDetector(ctype.DefaultDefinitions(), "")
	}
	return ctype.LoadFromResource(conf.UsageStatistics.SpidersPath)
}

func newStatsEnv(conf *config.Main) (*statsEnv, error) {
	spiders, err := loadSpiders(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to load spider definitions: %w", err)
	}
	notifier, err := notifications.NewNotifier(
		conf.EmailNotification, conf.ConomiNotification, conf.TimezoneLocation())
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	client := solr.NewClient(&conf.SolrStatistics.ConnectionConf)
	router := shards.NewRouter(client, conf.SolrStatistics.Core, conf.UsageStatistics.ShardedByYear)
	return &statsEnv{
		client:   client,
		router:   router,
		service:  stats.NewService(client, router, conf.SolrStatistics.QueryFilter, spiders),
		spiders:  spiders,
		notifier: notifier,
	}, nil
}

func newDryRunFlags(action string, dryRun *bool) *pflag.FlagSet {
	flags := pflag.NewFlagSet(action, pflag.ContinueOnError)
	flags.BoolVar(dryRun, "dry-run", false, "only report what would be changed")
	return flags
}

// newUsageLogger creates a logger of usage events with all the optional
// enrichment configured. The returned function releases the resources.
func newUsageLogger(
	conf *config.Main,
	env *statsEnv,
	reg prometheus.Registerer,
) (*usage.Logger, func(), error) {
	opts := []usage.BuilderOption{usage.WithSpiderClassifier(env.spiders)}
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	resolver, err := clientinfo.NewResolver(&conf.UsageStatistics.DNS)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to create DNS resolver: %w", err)
	}
	closers = append(closers, resolver.Close)
	opts = append(opts, usage.WithDNSResolver(resolver))

	if conf.UsageStatistics.GeoIPDbPath != "" {
		locator, err := clientinfo.OpenLocator(conf.UsageStatistics.GeoIPDbPath)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to open GeoIP database: %w", err)
		}
		closers = append(closers, func() { locator.Close() })
		opts = append(opts, usage.WithGeoLocator(locator))
	}

	props := conf.Properties()
	enrichers := make([]usage.Enricher, 0, len(conf.UsageStatistics.EnrichScripts))
	for _, path := range conf.UsageStatistics.EnrichScripts {
		enricher, err := scripting.CreateEnricher(path, props)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to load enrichment script: %w", err)
		}
		closers = append(closers, enricher.Close)
		enrichers = append(enrichers, enricher)
	}
	opts = append(opts, usage.WithEnrichers(enrichers...))

	metrics, err := usage.NewMetrics(reg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("failed to register metrics: %w", err)
	}
	builder := usage.NewBuilder(conf.UsageConf(), opts...)
	return usage.NewLogger(builder, env.service, conf.SolrStatistics.AutoCommit, metrics), cleanup, nil
}

func runIngest(ctx context.Context, conf *config.Main, args []string) error {
	env, err := newStatsEnv(conf)
	if err != nil {
		return err
	}
	repo := content.NewRepository()
	if conf.UsageStatistics.ContentSnapshotPath != "" {
		repo, err = content.LoadRepository(conf.UsageStatistics.ContentSnapshotPath)
		if err != nil {
			return err
		}
	}
	reg := prometheus.NewRegistry()
	logger, cleanup, err := newUsageLogger(conf, env, reg)
	defer cleanup()
	if err != nil {
		return err
	}

	var src io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open events file: %w", err)
		}
		defer f.Close()
		src = f
	}
	t0 := time.Now()
	ans, err := usage.Replay(ctx, src, repo, logger)
	log.Info().
		Int("lines", ans.Lines).
		Int("accepted", ans.Accepted).
		Int("failed", ans.Failed).
		Dur("duration", time.Since(t0)).
		Msg("finished ingesting usage events")
	if conf.SolrStatistics.AutoCommit {
		if cErr := env.service.Commit(ctx); cErr != nil {
			log.Error().Err(cErr).Msg("failed to commit ingested events")
		}
	}
	if conf.UsageStatistics.MetricsTextfile != "" {
		if mErr := prometheus.WriteToTextfile(conf.UsageStatistics.MetricsTextfile, reg); mErr != nil {
			log.Error().Err(mErr).Msg("failed to write metrics")
		}
	}
	return err
}

func runAnonymize(ctx context.Context, conf *config.Main, args []string) error {
	opts, err := anonymize.ParseOptions(args, os.Stderr)
	if err != nil {
		return err
	}
	env, err := newStatsEnv(conf)
	if err != nil {
		return err
	}
	job := anonymize.NewJob(
		docupdate.NewEngine(env.client, env.router),
		env.router,
		conf.Anonymize.Masks,
		conf.Anonymize.TimeThreshold,
		opts,
		env.notifier,
	)
	report, err := job.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Anonymized %d of %d documents, failed: %d\n", report.Updated, report.Total, len(report.Failed))
	return nil
}

func runShardMigration(ctx context.Context, conf *config.Main, args []string) error {
	var year int
	flags := pflag.NewFlagSet(config.ActionShard, pflag.ContinueOnError)
	flags.IntVarP(&year, "year", "y", 0, "migrate only the specified year")
	if err := flags.Parse(args); err != nil {
		return err
	}
	env, err := newStatsEnv(conf)
	if err != nil {
		return err
	}
	if !conf.UsageStatistics.ShardedByYear {
		log.Warn().Msg("usageStatistics.shardedByYear is off, created year shards will not be queried")
	}
	job := shardmig.NewJob(env.client, env.router, afero.NewOsFs(), conf.ShardMigration.TempDir, env.notifier)
	if year > 0 {
		res, err := job.MigrateYear(ctx, year)
		if err != nil {
			return err
		}
		fmt.Printf("Moved %d documents to %s\n", res.Exported, res.Core)
		return nil
	}
	report, err := job.Run(ctx)
	if err != nil {
		return err
	}
	for _, y := range report.Years {
		fmt.Printf("%d: moved %d documents to %s\n", y.Year, y.Exported, y.Core)
	}
	fmt.Printf("Moved %d documents in total\n", report.Moved())
	return nil
}

func runDocupdate(ctx context.Context, conf *config.Main, args []string) error {
	var dryRun bool
	if err := newDryRunFlags(config.ActionDocupdate, &dryRun).Parse(args); err != nil {
		return err
	}
	env, err := newStatsEnv(conf)
	if err != nil {
		return err
	}
	fmt.Println(conf.RecUpdate.Overview())
	res, err := docupdate.NewEngine(env.client, env.router).RunPlan(ctx, conf.RecUpdate, dryRun)
	if dryRun {
		fmt.Printf("Matching documents: %d\n", res.Matched)
		return err
	}
	fmt.Printf("Updated %d of %d documents\n", res.Updated, res.Matched)
	if len(res.Lost) > 0 {
		fmt.Printf("Lost documents: %v\n", res.Lost)
	}
	return err
}

func newPurge(env *statsEnv, dryRun bool) *docupdate.Purge {
	return docupdate.NewPurge(docupdate.NewEngine(env.client, env.router), env.spiders, env.service, dryRun)
}

func runMarkBots(ctx context.Context, conf *config.Main, args []string) error {
	var dryRun bool
	if err := newDryRunFlags(config.ActionMarkBots, &dryRun).Parse(args); err != nil {
		return err
	}
	env, err := newStatsEnv(conf)
	if err != nil {
		return err
	}
	purge := newPurge(env, dryRun)
	byIP, err := purge.MarkRobotsByIP(ctx)
	if err != nil {
		return err
	}
	byAgent, err := purge.MarkRobotsByUserAgent(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Marked as bots: %d (by IP), %d (by user agent)\n", byIP, byAgent)
	return nil
}

func runDeleteBots(ctx context.Context, conf *config.Main, args []string) error {
	var dryRun bool
	if err := newDryRunFlags(config.ActionDeleteBots, &dryRun).Parse(args); err != nil {
		return err
	}
	env, err := newStatsEnv(conf)
	if err != nil {
		return err
	}
	num, err := newPurge(env, dryRun).DeleteBots(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("Bot documents to be deleted: %d\n", num)
		return nil
	}
	fmt.Printf("Deleted bot documents: %d\n", num)
	notifications.SendJobReport(env.notifier, notifications.JobReport{
		Job:      config.ActionDeleteBots,
		Success:  true,
		Summary:  fmt.Sprintf("deleted %d bot documents", num),
		Metadata: map[string]any{"deleted": num},
	})
	return nil
}

func runWatch(ctx context.Context, conf *config.Main) error {
	env, err := newStatsEnv(conf)
	if err != nil {
		return err
	}
	wd := healthchk.NewStoreWatchdog(
		env.client,
		env.router,
		conf.Watchdog.MaxInactivitySecs,
		env.notifier,
		conf.Watchdog.NotificationTag,
	)
	log.Info().
		Int("intervalSecs", conf.Watchdog.IntervalSecs).
		Str("liveCore", env.router.LiveCore()).
		Msg("watching statistics cores")
	wd.Run(ctx, time.Duration(conf.Watchdog.IntervalSecs)*time.Second)
	return nil
}

func runTestNotification(conf *config.Main) error {
	notifier, err := notifications.NewNotifier(
		conf.EmailNotification, conf.ConomiNotification, conf.TimezoneLocation())
	if err != nil {
		return err
	}
	return notifier.SendNotification(
		notifications.SeverityInfo,
		"ustatproc test notification",
		map[string]any{"time": time.Now().In(conf.TimezoneLocation()).Format(time.RFC3339)},
		"This is a test notification sent by ustatproc.",
		"If you can read this, notifications are configured properly.",
	)
}

func generateScriptStub() {
	src, err := scripting.GenerateStub(usage.ClientContext{}, record.KnownFields())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate script stub")
	}
	fmt.Print(src)
}
