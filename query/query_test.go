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

package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ustatproc/record"
)

func TestRenderTermAndNot(t *testing.T) {
	q := And(Exists("ip"), Not(Term("isBot", "true")))
	assert.Equal(t, `(ip:[* TO *] AND (*:* -isBot:"true"))`, q.String())
}

func TestRenderTimeRange(t *testing.T) {
	q := TimeRange(
		"time",
		time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
	)
	assert.Equal(t, `time:["2019-01-01T00:00:00.000Z" TO "2020-01-01T00:00:00.000Z"}`, q.String())
	q = TimeRange("time", time.Time{}, time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, `time:[* TO "2020-01-01T00:00:00.000Z"}`, q.String())
}

func TestRenderPrefixEscapes(t *testing.T) {
	assert.Equal(t, `ip:66.249.66*`, Prefix("ip", "66.249.66").String())
	assert.Equal(t, `ip:2001\:db8*`, Prefix("ip", "2001:db8").String())
}

func TestRenderQuoteEscapes(t *testing.T) {
	assert.Equal(t, `query:"say \"hi\""`, Term("query", `say "hi"`).String())
}

func TestTimeRangeMatchIsHalfOpen(t *testing.T) {
	q := TimeRange(
		"time",
		time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
	)
	assert.True(t, q.Match(record.Doc{"time": {"2019-01-01T00:00:00Z"}}))
	assert.True(t, q.Match(record.Doc{"time": {"2019-12-31T23:59:59.999Z"}}))
	assert.False(t, q.Match(record.Doc{"time": {"2020-01-01T00:00:00.000Z"}}))
	assert.False(t, q.Match(record.Doc{}))
}

func TestMultiValuedMatch(t *testing.T) {
	doc := record.Doc{"bundleName": {"ORIGINAL", "THUMBNAIL"}}
	assert.True(t, In("bundleName", "ORIGINAL").Match(doc))
	assert.False(t, Not(In("bundleName", "ORIGINAL", "LICENSE")).Match(doc))
	assert.True(t, Not(In("bundleName", "TEXT")).Match(doc))
}

func TestOrOfNothingMatchesNothing(t *testing.T) {
	assert.False(t, Or().Match(record.Doc{"id": {"1"}}))
	assert.True(t, And().Match(record.Doc{"id": {"1"}}))
}

func TestNumericRange(t *testing.T) {
	q := Range("rpp", "5", "20", true, true)
	assert.True(t, q.Match(record.Doc{"rpp": {"10"}}))
	assert.False(t, q.Match(record.Doc{"rpp": {"100"}}))
}

func TestEvaluable(t *testing.T) {
	assert.True(t, Evaluable(And(Term("a", "b"), Not(Exists("c")))))
	assert.False(t, Evaluable(And(Term("a", "b"), Not(Raw("c:d OR e:f")))))
	assert.True(t, Evaluable(Raw("*:*")))
}
