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

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog/log"

	"ustatproc/common"
)

const patternMatchTimeout = 100 * time.Millisecond

type BotInfo struct {
	Title   string   `json:"title"`
	Match   []string `json:"match"`
	Example string   `json:"example"`
}

// BotsAndMonitors is the stored form of spider definitions
type BotsAndMonitors struct {
	Bots     []BotInfo `json:"bots"`
	Monitors []BotInfo `json:"monitors"`

	// AgentPatterns are case insensitive regular expressions
	// matching user agents of spiders
	AgentPatterns []string `json:"agentPatterns"`

	// IPList contains single addresses, partial addresses (e.g. 66.249.66),
	// CIDR blocks or ranges (a.b.c.d-a.b.c.e)
	IPList []string `json:"ipList"`

	// IPListFiles are paths (or URLs) of files with one IPList entry
	// per line. Relative paths are resolved against the definition file.
	IPListFiles []string `json:"ipListFiles"`
}

func searchMatchingDef(userAgent string, defs []BotInfo) bool {
	for _, item := range defs {
		if len(item.Match) == 0 {
			continue
		}
		match := true
		for _, m := range item.Match {
			match = match && strings.Contains(userAgent, m)
			if !match {
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// SpiderDetector classifies clients based on their IP address
// and user agent. All the data are kept in memory and the detector
// is safe for concurrent use.
type SpiderDetector struct {
	data     *BotsAndMonitors
	patterns []*regexp2.Regexp
	ips      *IPTable
}

func (sd *SpiderDetector) AgentIsMonitor(userAgent string) bool {
	return searchMatchingDef(userAgent, sd.data.Monitors)
}

func (sd *SpiderDetector) AgentIsBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	if searchMatchingDef(userAgent, sd.data.Bots) {
		return true
	}
	for _, ptrn := range sd.patterns {
		ok, err := ptrn.MatchString(userAgent)
		if err != nil {
			log.Debug().Err(err).Str("pattern", ptrn.String()).Msg("failed to match agent pattern")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// IsSpiderIP tells whether ip belongs to a known spider.
// Malformed addresses are classified as non-spider.
func (sd *SpiderDetector) IsSpiderIP(ip string) bool {
	return sd.ips.Contains(ip)
}

// IsSpider classifies a request by its client address and user agent
func (sd *SpiderDetector) IsSpider(requestIP, userAgent string) bool {
	return sd.IsSpiderIP(requestIP) || sd.AgentIsBot(userAgent) || sd.AgentIsMonitor(userAgent)
}

// SpiderIPPrefixes provides the IP table for text prefix matching
// of stored addresses
func (sd *SpiderDetector) SpiderIPPrefixes() []string {
	return sd.ips.Prefixes()
}

// NewSpiderDetector compiles the definitions. IP list files are loaded
// relative to baseDir.
func NewSpiderDetector(data *BotsAndMonitors, baseDir string) (*SpiderDetector, error) {
	ans := &SpiderDetector{
		data:     data,
		patterns: make([]*regexp2.Regexp, 0, len(data.AgentPatterns)),
		ips:      NewIPTable(),
	}
	for _, p := range data.AgentPatterns {
		ptrn, err := regexp2.Compile(p, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("invalid agent pattern '%s': %w", p, err)
		}
		ptrn.MatchTimeout = patternMatchTimeout
		ans.patterns = append(ans.patterns, ptrn)
	}
	for _, entry := range data.IPList {
		if err := ans.ips.Add(entry); err != nil {
			return nil, err
		}
	}
	for _, f := range data.IPListFiles {
		if baseDir != "" && !strings.Contains(f, ":/") && !filepath.IsAbs(f) {
			f = filepath.Join(baseDir, f)
		}
		lines, err := common.LoadLines(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load spider IP list %s: %w", f, err)
		}
		for _, entry := range lines {
			if err := ans.ips.Add(entry); err != nil {
				log.Warn().Err(err).Str("file", f).Msg("skipping invalid spider IP entry")
			}
		}
	}
	return ans, nil
}

// LoadFromResource loads spider definitions from a JSON file
// or an http(s) URL
func LoadFromResource(uri string) (*SpiderDetector, error) {
	rawData, err := common.LoadSupportedResource(uri)
	if err != nil {
		return nil, err
	}
	data := new(BotsAndMonitors)
	if err := json.Unmarshal(rawData, data); err != nil {
		return nil, fmt.Errorf("failed to parse spider definitions: %w", err)
	}
	var baseDir string
	if !strings.Contains(uri, "://") {
		baseDir = filepath.Dir(uri)
	}
	ans, err := NewSpiderDetector(data, baseDir)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("botDefs", len(data.Bots)).
		Int("monitorDefs", len(data.Monitors)).
		Int("agentPatterns", len(ans.patterns)).
		Int("ipEntries", ans.ips.Size()).
		Msg("loaded spider definitions")
	return ans, nil
}
