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

package anonymize

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ustatproc/docupdate"
	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save/memory"
	"ustatproc/shards"
)

const (
	liveCore = "statistics"
	yearCore = "statistics-2023"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ipDoc(uid, ip, dns string, tm time.Time) record.Doc {
	doc := record.Doc{
		record.FieldUID:            {uid},
		record.FieldIP:             {ip},
		record.FieldTime:           {record.FormatTime(tm)},
		record.FieldStatisticsType: {"view"},
		record.FieldType:           {"item"},
		record.FieldID:             {"i1"},
	}
	if dns != "" {
		doc.Set(record.FieldDNS, dns)
	}
	return doc
}

func newTestJob(t *testing.T, opts Options, live, year []record.Doc) (*Job, *memory.Store) {
	ctx := context.Background()
	store := memory.NewStore(record.MultiValuedFields, liveCore, yearCore)
	require.NoError(t, store.Add(ctx, liveCore, live...))
	require.NoError(t, store.Commit(ctx, liveCore))
	require.NoError(t, store.Add(ctx, yearCore, year...))
	require.NoError(t, store.Commit(ctx, yearCore))
	router := shards.NewRouter(store, liveCore, true)
	engine := docupdate.NewEngine(store, router)
	job := NewJob(engine, router, record.Masks{}, 90, opts, nil)
	job.nowFn = func() time.Time { return testNow }
	return job, store
}

func TestRunAnonymizesOldDocuments(t *testing.T) {
	old := testNow.AddDate(0, 0, -200)
	recent := testNow.AddDate(0, 0, -10)
	live := make([]record.Doc, 0, 10)
	for i := 0; i < 7; i++ {
		live = append(live, ipDoc(fmt.Sprintf("a%02d", i), fmt.Sprintf("192.0.2.%d", i+1), "host.example.org", old))
	}
	live = append(live,
		ipDoc("b01", "2001:db8::1:2", "", old),
		ipDoc("b02", "198.51.100.9", "", recent),
		ipDoc("b03", "198.51.100.255", "anonymized", old),
	)
	year := []record.Doc{ipDoc("y01", "203.0.113.5", "", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC))}
	job, store := newTestJob(t, Options{Batch: 3, Threads: 2}, live, year)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), report.Total)
	assert.Equal(t, 9, report.Updated)
	assert.True(t, report.Success())
	assert.Empty(t, report.Failed)

	assert.Equal(t, 0, store.Count(liveCore, query.Term(record.FieldIP, "192.0.2.1")))
	assert.Equal(t, 7, store.Count(liveCore, query.Prefix(record.FieldIP, "192.0.2.")))
	assert.Equal(t, 7, store.Count(liveCore, query.Term(record.FieldIP, "192.0.2.255")))
	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldIP, "2001:db8::FFFF:FFFF")))
	assert.Equal(t, 1, store.Count(yearCore, query.Term(record.FieldIP, "203.0.113.255")))
	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldIP, "198.51.100.9")))
	assert.Equal(t, 10, store.Count(liveCore, query.All()))
	assert.Equal(t, 0, store.Count(liveCore, job.Query())+store.Count(yearCore, job.Query()))
}

func TestRunSkipsUnmaskableDocuments(t *testing.T) {
	old := testNow.AddDate(0, 0, -200)
	live := []record.Doc{
		ipDoc("a01", "unknown", "", old),
		ipDoc("a02", "192.0.2.1", "", old),
		ipDoc("a03", "192.0.2.2", "", old),
	}
	job, store := newTestJob(t, Options{Batch: 1, Threads: 1}, live, nil)
	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.Total)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, []string{"a01"}, report.Failed)
	assert.False(t, report.Success())
	assert.Equal(t, 1, store.Count(liveCore, query.Term(record.FieldIP, "unknown")))
}

func TestRunWithoutMatchingDocuments(t *testing.T) {
	job, _ := newTestJob(t, Options{Batch: 10, Threads: 2}, nil, nil)
	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Total)
	assert.True(t, report.Success())
}

func TestParseOptions(t *testing.T) {
	var out bytes.Buffer
	opts, err := ParseOptions([]string{}, &out)
	require.NoError(t, err)
	assert.Equal(t, Options{SleepMs: DefaultSleepMs, Batch: DefaultBatch, Threads: DefaultThreads}, opts)

	opts, err = ParseOptions([]string{"-s", "100", "--batch", "50", "-t", "4"}, &out)
	require.NoError(t, err)
	assert.Equal(t, Options{SleepMs: 100, Batch: 50, Threads: 4}, opts)

	_, err = ParseOptions([]string{"-h"}, &out)
	assert.ErrorIs(t, err, ErrHelp)
	assert.Contains(t, out.String(), "--threads")

	_, err = ParseOptions([]string{"-b", "0"}, &out)
	assert.Error(t, err)

	_, err = ParseOptions([]string{"-b", "many"}, &out)
	assert.Error(t, err)
}
