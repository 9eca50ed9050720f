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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const googlebotAgent = "Mozilla/5.0 (Linux; Android 6.0.1; Nexus 5X Build/MMB29P) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/41.0.2272.96 Mobile Safari/537.36 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

func TestAgentIsBot(t *testing.T) {
	detector, err := NewSpiderDetector(
		&BotsAndMonitors{
			Bots: []BotInfo{
				{
					Match: []string{"Googlebot/", "Mozilla/5.0"},
				},
			},
		},
		"",
	)
	require.NoError(t, err)
	assert.True(t, detector.AgentIsBot(googlebotAgent))
}

func TestAgentIsBotMustMatchAll(t *testing.T) {
	detector, err := NewSpiderDetector(
		&BotsAndMonitors{
			Bots: []BotInfo{
				{
					Match: []string{"Googlebot/", "Mozilla/6.0"},
				},
			},
		},
		"",
	)
	require.NoError(t, err)
	assert.False(t, detector.AgentIsBot(googlebotAgent))
}

func TestAgentPatternsIgnoreCase(t *testing.T) {
	detector, err := NewSpiderDetector(
		&BotsAndMonitors{
			AgentPatterns: []string{`^(?!.*firefox).*crawler`},
		},
		"",
	)
	require.NoError(t, err)
	assert.True(t, detector.AgentIsBot("Some CRAWLER/1.0"))
	assert.False(t, detector.AgentIsBot("Firefox crawler extension"))
	assert.False(t, detector.AgentIsBot(""))
}

func TestDefaultDefinitions(t *testing.T) {
	detector, err := NewSpiderDetector(DefaultDefinitions(), "")
	require.NoError(t, err)
	assert.True(t, detector.AgentIsBot(googlebotAgent))
	assert.True(t, detector.AgentIsBot("Mozilla/5.0 (compatible; Yahoo! Slurp)"))
	assert.False(t, detector.AgentIsBot("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"))
}

func TestIsSpiderIP(t *testing.T) {
	detector, err := NewSpiderDetector(
		&BotsAndMonitors{
			IPList: []string{"66.249.66", "157.55.39.0/24", "192.0.2.10-192.0.2.20", "198.51.100.7", "2001:db8::/32"},
		},
		"",
	)
	require.NoError(t, err)
	assert.True(t, detector.IsSpiderIP("66.249.66.1"))
	assert.False(t, detector.IsSpiderIP("66.249.67.1"))
	assert.True(t, detector.IsSpiderIP("157.55.39.200"))
	assert.True(t, detector.IsSpiderIP("192.0.2.15"))
	assert.False(t, detector.IsSpiderIP("192.0.2.21"))
	assert.True(t, detector.IsSpiderIP("198.51.100.7"))
	assert.False(t, detector.IsSpiderIP("198.51.100.70"))
	assert.True(t, detector.IsSpiderIP("2001:db8::1"))
	assert.False(t, detector.IsSpiderIP("not-an-ip"))
	assert.False(t, detector.IsSpiderIP(""))
	assert.True(t, detector.IsSpider("66.249.66.9", "Mozilla/5.0"))
	assert.True(t, detector.IsSpider("10.0.0.1", googlebotAgent))
	assert.False(t, detector.IsSpider("10.0.0.1", "Mozilla/5.0"))
}

func TestInvalidIPEntry(t *testing.T) {
	_, err := NewSpiderDetector(&BotsAndMonitors{IPList: []string{"300.1"}}, "")
	assert.Error(t, err)
	_, err = NewSpiderDetector(&BotsAndMonitors{IPList: []string{"10.0.0.9-10.0.0.1"}}, "")
	assert.Error(t, err)
}

func TestSpiderIPPrefixes(t *testing.T) {
	detector, err := NewSpiderDetector(
		&BotsAndMonitors{
			IPList: []string{"66.249.66", "157.55.39.0/24", "10.0.16.0/20", "192.0.2.10-192.0.2.12", "198.51.100.7"},
		},
		"",
	)
	require.NoError(t, err)
	prefixes := detector.SpiderIPPrefixes()
	assert.Contains(t, prefixes, "66.249.66.")
	assert.Contains(t, prefixes, "157.55.39.")
	assert.Contains(t, prefixes, "10.0.16.")
	assert.Contains(t, prefixes, "10.0.31.")
	assert.NotContains(t, prefixes, "10.0.32.")
	assert.Contains(t, prefixes, "192.0.2.11")
	assert.Contains(t, prefixes, "198.51.100.7")
	assert.Len(t, prefixes, 2+16+3+1)
}

func TestLoadFromResource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ips.txt"), []byte("# bots\n66.249.66\n"), 0644))
	defs := `{"bots": [{"title": "test", "match": ["TestBot"]}], "ipListFiles": ["ips.txt"]}`
	defsPath := filepath.Join(dir, "spiders.json")
	require.NoError(t, os.WriteFile(defsPath, []byte(defs), 0644))

	detector, err := LoadFromResource(defsPath)
	require.NoError(t, err)
	assert.True(t, detector.AgentIsBot("TestBot/1.0"))
	assert.True(t, detector.IsSpiderIP("66.249.66.3"))
}
