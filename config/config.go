// Copyright 2017 Tomas Machalek <tomas.machalek@gmail.com>
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
	"os"
	"strings"
	"time"

	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/czcorpus/cnc-gokit/mail"
	conomiClient "github.com/czcorpus/conomi/client"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"

	"ustatproc/anonymize"
	"ustatproc/clientinfo"
	"ustatproc/common"
	"ustatproc/docupdate"
	"ustatproc/record"
	"ustatproc/save/solr"
	"ustatproc/stats"
	"ustatproc/usage"
)

const (
	ActionIngest           = "ingest"
	ActionAnonymize        = "anonymize"
	ActionShard            = "shard"
	ActionDocupdate        = "docupdate"
	ActionMarkBots         = "markbots"
	ActionDeleteBots       = "deletebots"
	ActionWatch            = "watch"
	ActionHelp             = "help"
	ActionVersion          = "version"
	ActionTestNotification = "test-notification"
	ActionScriptStub       = "script-stub"

	DefaultTimeZone = "Europe/Prague"

	// EnvPrefix marks environment variables overriding the config
	// file, e.g. USTATPROC_solrStatistics__server
	EnvPrefix = "USTATPROC_"

	defaultWatchIntervalSecs  = 60
	defaultMaxInactivitySecs  = 300
	defaultMigrationTempDir   = "/tmp/ustatproc-shards"
	defaultNotificationTagVal = "ustatproc"
)

// SolrStatisticsConf configures the statistics store
type SolrStatisticsConf struct {
	solr.ConnectionConf `json:",squash"`

	// AutoCommit tells whether the store commits added documents
	// by itself. If not, each logged event is followed by a commit.
	AutoCommit  bool                  `json:"autoCommit"`
	QueryFilter stats.QueryFilterConf `json:"queryFilter"`
}

// UsageStatisticsConf configures creation of statistics documents
type UsageStatisticsConf struct {
	LogBots       bool                    `json:"logBots"`
	UseProxies    bool                    `json:"useProxies"`
	ShardedByYear bool                    `json:"shardedByYear"`
	SpidersPath   string                  `json:"spidersPath"`
	GeoIPDbPath   string                  `json:"geoIpDbPath"`
	EnrichScripts []string                `json:"enrichScripts"`
	DNS           clientinfo.ResolverConf `json:"dns"`

	// ContentSnapshotPath is a JSON description of the content
	// hierarchy used to resolve objects of ingested events
	ContentSnapshotPath string `json:"contentSnapshotPath"`

	// MetricsTextfile is where ingestion counters are written
	// (Prometheus text format) once the ingest action finishes
	MetricsTextfile string `json:"metricsTextfile"`
}

type AnonymizeConf struct {
	TimeThreshold  int          `json:"timeThreshold"`
	AnonymizeOnLog bool         `json:"anonymizeOnLog"`
	Masks          record.Masks `json:"masks"`
}

type ShardMigrationConf struct {
	TempDir string `json:"tempDir"`
}

type WatchdogConf struct {
	IntervalSecs      int    `json:"intervalSecs"`
	MaxInactivitySecs int    `json:"maxInactivitySecs"`
	NotificationTag   string `json:"notificationTag"`
}

// Main describes ustatproc's configuration
type Main struct {
	LogPath            string                         `json:"logPath"`
	LogLevel           string                         `json:"logLevel"`
	TimeZone           string                         `json:"timeZone"`
	SolrStatistics     SolrStatisticsConf             `json:"solrStatistics"`
	UsageStatistics    UsageStatisticsConf            `json:"usageStatistics"`
	Anonymize          AnonymizeConf                  `json:"anonymize"`
	ShardMigration     ShardMigrationConf             `json:"shardMigration"`
	RecUpdate          docupdate.PlanConf             `json:"recordUpdate"`
	Watchdog           WatchdogConf                   `json:"watchdog"`
	EmailNotification  *mail.NotificationConf         `json:"emailNotification"`
	ConomiNotification *conomiClient.ConomiClientConf `json:"conomiNotification"`

	// Properties contains additional DSpace style keys
	// (e.g. handle.canonical.prefix) available to enrichment scripts
	CustomProperties map[string]any `json:"properties"`
}

func (c *Main) TimezoneLocation() *time.Location {
	// we can ignore the error here as we always call c.Validate()
	// first (which also tries to load the location and report possible
	// error)
	loc, _ := time.LoadLocation(c.TimeZone)
	return loc
}

// UsageConf returns configuration of the usage event builder
func (c *Main) UsageConf() usage.Conf {
	return usage.Conf{
		LogBots:        c.UsageStatistics.LogBots,
		UseProxies:     c.UsageStatistics.UseProxies,
		AnonymizeOnLog: c.Anonymize.AnonymizeOnLog,
		Masks:          c.Anonymize.Masks,
		AutoCommit:     c.SolrStatistics.AutoCommit,
		EnrichScripts:  c.UsageStatistics.EnrichScripts,
	}
}

func checkFile(path, desc string) {
	isFile, err := fs.IsFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msgf("failed to check %s", desc)
	}
	if !isFile {
		log.Fatal().Str("path", path).Msgf("invalid %s", desc)
	}
}

// Validate checks for some essential config properties
func Validate(conf *Main, action string) {
	if err := conf.SolrStatistics.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid solrStatistics configuration")
	}
	if err := conf.UsageStatistics.DNS.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid usageStatistics.dns configuration")
	}
	if conf.UsageStatistics.GeoIPDbPath != "" {
		checkFile(conf.UsageStatistics.GeoIPDbPath, "usageStatistics.geoIpDbPath")
	}
	for _, script := range conf.UsageStatistics.EnrichScripts {
		checkFile(script, "enrichment script")
	}
	if action == ActionIngest && conf.UsageStatistics.ContentSnapshotPath == "" {
		log.Warn().Msg("no usageStatistics.contentSnapshotPath, only events without objects can be ingested")
	}
	if (action == ActionMarkBots || action == ActionDeleteBots) && conf.UsageStatistics.SpidersPath == "" {
		log.Fatal().Msgf("missing usageStatistics.spidersPath for the `%s` action", action)
	}
	if action == ActionDocupdate {
		if err := conf.RecUpdate.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid recordUpdate configuration")
		}
	}
	if conf.Anonymize.TimeThreshold <= 0 {
		log.Warn().
			Int("default", anonymize.DefaultTimeThresholdDays).
			Msg("anonymize.timeThreshold not specified, using default")
		conf.Anonymize.TimeThreshold = anonymize.DefaultTimeThresholdDays
	}
	conf.Anonymize.Masks = conf.Anonymize.Masks.WithDefaults()
	if conf.ShardMigration.TempDir == "" {
		conf.ShardMigration.TempDir = defaultMigrationTempDir
	}
	if conf.Watchdog.IntervalSecs <= 0 {
		conf.Watchdog.IntervalSecs = defaultWatchIntervalSecs
	}
	if conf.Watchdog.MaxInactivitySecs <= 0 {
		conf.Watchdog.MaxInactivitySecs = defaultMaxInactivitySecs
	}
	if conf.Watchdog.NotificationTag == "" {
		conf.Watchdog.NotificationTag = defaultNotificationTagVal
	}
	if conf.TimeZone == "" {
		conf.TimeZone = DefaultTimeZone
		log.Warn().Str("timezone", conf.TimeZone).
			Msg("timeZone not specified, using default")
	}
	if _, err := time.LoadLocation(conf.TimeZone); err != nil {
		log.Fatal().Err(err).Msg("invalid timeZone")
	}
}

// resourceProvider is a koanf provider of config files
// available via common.LoadSupportedResource (e.g. over http)
type resourceProvider struct {
	uri string
}

func (rp resourceProvider) ReadBytes() ([]byte, error) {
	return common.LoadSupportedResource(rp.uri)
}

func (rp resourceProvider) Read() (map[string]any, error) {
	return nil, fmt.Errorf("resourceProvider does not support Read()")
}

func defaultValues() map[string]any {
	return map[string]any{
		"logLevel":                            "info",
		"solrStatistics.core":                 solr.DefaultCore,
		"solrStatistics.autoCommit":           true,
		"solrStatistics.queryFilter.isBot":    true,
		"solrStatistics.queryFilter.spiderIp": false,
		"solrStatistics.queryFilter.bundles":  []string{stats.DefaultBundle},
		"anonymize.timeThreshold":             anonymize.DefaultTimeThresholdDays,
	}
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", ".")
}

// Load loads main configuration (either from a local fs or via http(s)).
// YAML is expected, JSON is accepted as well. Values can be overridden
// by environment variables with the EnvPrefix.
func Load(path string) (*Main, error) {
	if path == "" {
		return nil, fmt.Errorf("config path not specified")
	}
	k := koanf.New(".")
	for key, value := range defaultValues() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default of %s: %w", key, err)
		}
	}
	var provider koanf.Provider = resourceProvider{uri: path}
	if _, err := os.Stat(path); err == nil {
		provider = file.Provider(path)
	}
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	var conf Main
	if err := k.UnmarshalWithConf("", &conf, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &conf, nil
}
