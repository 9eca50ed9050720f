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

package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func createSearchEvent() *UsageEvent {
	return &UsageEvent{
		UID:       "4c3c8a63-8e49-4f0b-9a8b-1c2f8f5a1e11",
		IP:        "192.168.1.10",
		DNS:       "foo.example.com",
		UserAgent: "Mozilla/5.0",
		Location: &GeoLocation{
			CountryCode: "CZ",
			City:        "Prague",
			Continent:   "EU",
			Latitude:    50.0875,
			Longitude:   14.4213,
		},
		Time:           time.Date(2024, time.March, 2, 8, 30, 12, 345000000, time.UTC),
		StatisticsType: StatsTypeSearch,
		Search: &SearchInfo{
			Queries: []string{"corpus linguistics"},
			RPP:     -1,
			Page:    2,
		},
	}
}

func TestToDocOmitsUnsetSearchFields(t *testing.T) {
	doc := createSearchEvent().ToDoc()
	assert.False(t, doc.Has(FieldRPP))
	assert.Equal(t, "2", doc.Get(FieldPage))
	assert.False(t, doc.Has(FieldSortBy))
	assert.False(t, doc.Has(FieldSortOrder))
	assert.Equal(t, "2024-03-02T08:30:12.345Z", doc.Get(FieldTime))
	assert.Equal(t, "false", doc.Get(FieldIsBot))
	assert.False(t, doc.Has(FieldWorkflowStep))
}

func TestSortOrderRequiresSortBy(t *testing.T) {
	ev := createSearchEvent()
	ev.Search.SortOrder = "asc"
	assert.False(t, ev.ToDoc().Has(FieldSortOrder))
	ev.Search.SortBy = "dc.title"
	assert.Equal(t, "asc", ev.ToDoc().Get(FieldSortOrder))
}

func TestFromDocRestoresEvent(t *testing.T) {
	ev := createSearchEvent()
	ev.Extra = Doc{"customField": {"x"}}
	doc := ev.ToDoc()
	doc.Set(FieldVersion, "1778001")
	restored, err := FromDoc(doc)
	assert.NoError(t, err)
	assert.Equal(t, ev, restored)
}

func TestValidateRejectsForeignFields(t *testing.T) {
	ev := createSearchEvent()
	ev.StatisticsType = StatsTypeLogin
	ev.EPersonID = "e1"
	assert.Error(t, ev.Validate())
	ev.Search = nil
	assert.NoError(t, ev.Validate())
}

func TestValidateRequiredFields(t *testing.T) {
	ev := &UsageEvent{StatisticsType: StatsTypeView, Time: time.Now()}
	assert.Error(t, ev.Validate())
	ev.ObjectID = "I1"
	ev.ObjectType = "item"
	assert.NoError(t, ev.Validate())

	wf := &UsageEvent{
		StatisticsType: StatsTypeWorkflow,
		Time:           time.Now(),
		ObjectID:       "I1",
		ObjectType:     "item",
		Workflow:       &WorkflowInfo{Step: "reviewstep"},
	}
	assert.Error(t, wf.Validate())
	wf.Workflow.WorkflowItemID = "17"
	assert.NoError(t, wf.Validate())
}
