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
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustatproc/content"
	"ustatproc/query"
	"ustatproc/record"
)

const recordedEvents = `{"statisticsType": "view", "object": {"type": "item", "id": "I1"}, "ip": "198.51.100.4", "userAgent": "Mozilla/5.0"}

{"statisticsType": "search", "queries": ["corpus"], "scope": {"type": "collection", "id": "C1"}, "rpp": 20, "ip": "198.51.100.4"}
{"statisticsType": "login", "epersonId": "e-1", "ip": "198.51.100.5"}
{"statisticsType": "view", "object": {"type": "item", "id": "I999"}, "ip": "198.51.100.4"}
{"statisticsType": "view", "object": {"type": "item", "id": "I1"}, "ip": "192.0.2.9", "userAgent": "Googlebot/2.1"}
this is not json
`

func TestReplay(t *testing.T) {
	logger, _, store := newTestLogger(t, Conf{}, nil)
	item := sampleItem()
	repo := content.NewRepository(item, item.Collections[0])

	ans, err := Replay(context.Background(), strings.NewReader(recordedEvents), repo, logger)
	require.NoError(t, err)
	assert.Equal(t, 6, ans.Lines)
	assert.Equal(t, 4, ans.Accepted)
	assert.Equal(t, 2, ans.Failed)

	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldStatisticsType, "view")))
	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldStatisticsType, "search")))
	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldStatisticsType, "login")))
	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldScopeID, "C1")))
}

func TestRecordedEventUnsupportedType(t *testing.T) {
	logger, _, _ := newTestLogger(t, Conf{}, nil)
	ev := RecordedEvent{StatisticsType: "download", RemoteIP: "198.51.100.4"}
	assert.Error(t, ev.Post(context.Background(), content.NewRepository(), logger))
}
