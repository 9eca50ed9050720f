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
	"fmt"
	"strings"

	"ustatproc/config"
)

var availableActions = []string{
	config.ActionIngest,
	config.ActionAnonymize,
	config.ActionShard,
	config.ActionDocupdate,
	config.ActionMarkBots,
	config.ActionDeleteBots,
	config.ActionWatch,
	config.ActionTestNotification,
	config.ActionScriptStub,
	config.ActionVersion,
	config.ActionHelp,
}

func isAction(action string) bool {
	for _, a := range availableActions {
		if a == action {
			return true
		}
	}
	return false
}

var helpTexts = map[string]string{
	config.ActionIngest: `Read usage events (one JSON object per line) from a file or from the
standard input and store them as statistics documents.

	ustatproc ingest config.yaml [events.jsonl]

Each event has a "statisticsType" (view, search, search_result, workflow, login)
and client information ("ip", "xForwardedFor", "userAgent", "referrer"). Viewed
objects are referenced as {"type": "item", "id": "..."} and resolved using
usageStatistics.contentSnapshotPath. Bots are dropped unless usageStatistics.logBots
is enabled.`,

	config.ActionAnonymize: `Mask IP addresses and DNS names of documents older than
anonymize.timeThreshold days.

	ustatproc anonymize config.yaml [-s sleep_ms] [-b batch] [-t threads]

Documents are processed in rounds of the batch size, each round is committed.
Documents which cannot be masked are reported and skipped.`,

	config.ActionShard: `Move documents of finished years from the live core to year cores
(e.g. statistics-2023).

	ustatproc shard config.yaml [--year YYYY]

Exported pages are kept in shardMigration.tempDir until the year is imported.
Documents are deleted from the live core only once the year core contains all of them.`,

	config.ActionDocupdate: `Update each document matching the filters in "recordUpdate"
using the specified action (addOne, replace, remOne) and fields.

	ustatproc docupdate config.yaml [--dry-run]

recordUpdate:
  filters:
    - fromDate: "2024-01-01"
      toDate: "2024-02-01"
      ipAddress: "192.0.2."
  action: replace
  fields:
    isBot: ["true"]`,

	config.ActionMarkBots: `Mark existing documents of known spiders (by IP and by user agent)
with isBot=true.

	ustatproc markbots config.yaml [--dry-run]`,

	config.ActionDeleteBots: `Delete all the documents marked as bots or coming from known spider IPs.

	ustatproc deletebots config.yaml [--dry-run]`,

	config.ActionWatch: `Periodically ping all the statistics cores and notify administrators
once a core has not been available for watchdog.maxInactivitySecs.

	ustatproc watch config.yaml`,

	config.ActionTestNotification: `Send a test notification using the configured e-mail
or Conomi notifier.

	ustatproc test-notification config.yaml`,

	config.ActionScriptStub: `Print a stub of an enrichment script (Lua) with documented
input values.

	ustatproc script-stub > enrich.lua`,
}

func help(topic string) {
	if topic == "" {
		fmt.Printf("Missing action to help with. Select one of the:\n\t%s\n", strings.Join(availableActions, ", "))
		return
	}
	fmt.Printf("\n[%s]\n\n", topic)
	if text, ok := helpTexts[topic]; ok {
		fmt.Println(text)

	} else {
		fmt.Println("- no information available -")
	}
	fmt.Println()
}
