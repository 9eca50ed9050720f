// Copyright 2019 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2019 Institute of the Czech National Corpus,
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

package ctype

// DefaultDefinitions returns built-in spider definitions used
// when no definition resource is configured. The rules are matched
// case-insensitively.
func DefaultDefinitions() *BotsAndMonitors {
	return &BotsAndMonitors{
		Bots:     []BotInfo{},
		Monitors: []BotInfo{},
		AgentPatterns: []string{
			`ahrefsbot`,
			`applebot`,
			`baiduspider`,
			`bingbot`,
			`blexbot`,
			`dotbot`,
			`duckduckbot`,
			`exabot`,
			`googlebot`,
			`ia_archiver`,
			`mail\.ru_bot`,
			`mauibot`,
			`mediatoolkitbot`,
			`megaindex\.ru`,
			`mj12bot`,
			`semanticscholarbot`,
			`semrushbot`,
			`seokicks-robot`,
			`seznambot`,
			`yacybot`,
			`yahoo.*slurp`,
			`yandexbot`,
			// monitoring
			`python-urllib/2\.7`,
			`zabbix-test`,
		},
		IPList:      []string{},
		IPListFiles: []string{},
	}
}
