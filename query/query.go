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

// Package query provides a small structured query language for
// statistics documents. Queries render to the Lucene/Solr syntax
// and can also be evaluated against documents held in memory.
package query

import (
	"strconv"
	"strings"
	"time"

	"ustatproc/record"
)

type Query interface {
	String() string
	Match(doc record.Doc) bool
}

const luceneSpecialChars = `+-&|!(){}[]^"~*?:\/ `

// EscapeValue escapes characters with special meaning in the Lucene syntax
func EscapeValue(v string) string {
	var buff strings.Builder
	for _, c := range v {
		if strings.ContainsRune(luceneSpecialChars, c) {
			buff.WriteRune('\\')
		}
		buff.WriteRune(c)
	}
	return buff.String()
}

func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return "\"" + v + "\""
}

// ----

type all struct{}

func (q all) String() string {
	return "*:*"
}

func (q all) Match(doc record.Doc) bool {
	return true
}

// All matches any document
func All() Query {
	return all{}
}

// ----

type term struct {
	field string
	value string
}

func (q term) String() string {
	return q.field + ":" + quote(q.value)
}

func (q term) Match(doc record.Doc) bool {
	for _, v := range doc.GetAll(q.field) {
		if v == q.value {
			return true
		}
	}
	return false
}

// Term matches documents where at least one value of the field
// equals the provided one
func Term(field, value string) Query {
	return term{field: field, value: value}
}

// ----

type prefix struct {
	field  string
	prefix string
}

func (q prefix) String() string {
	return q.field + ":" + EscapeValue(q.prefix) + "*"
}

func (q prefix) Match(doc record.Doc) bool {
	for _, v := range doc.GetAll(q.field) {
		if strings.HasPrefix(v, q.prefix) {
			return true
		}
	}
	return false
}

func Prefix(field, value string) Query {
	return prefix{field: field, prefix: value}
}

// ----

type exists struct {
	field string
}

func (q exists) String() string {
	return q.field + ":[* TO *]"
}

func (q exists) Match(doc record.Doc) bool {
	return doc.Has(q.field)
}

// Exists matches documents having at least one value of the field
func Exists(field string) Query {
	return exists{field: field}
}

// ----

type rangeQuery struct {
	field        string
	from         string
	to           string
	includeLower bool
	includeUpper bool
}

func (q rangeQuery) String() string {
	var buff strings.Builder
	buff.WriteString(q.field)
	buff.WriteString(":")
	if q.includeLower {
		buff.WriteString("[")

	} else {
		buff.WriteString("{")
	}
	if q.from == "" {
		buff.WriteString("*")

	} else {
		buff.WriteString(quote(q.from))
	}
	buff.WriteString(" TO ")
	if q.to == "" {
		buff.WriteString("*")

	} else {
		buff.WriteString(quote(q.to))
	}
	if q.includeUpper {
		buff.WriteString("]")

	} else {
		buff.WriteString("}")
	}
	return buff.String()
}

func (q rangeQuery) Match(doc record.Doc) bool {
	for _, v := range doc.GetAll(q.field) {
		if q.from != "" {
			cmp := compareValues(v, q.from)
			if cmp < 0 || cmp == 0 && !q.includeLower {
				continue
			}
		}
		if q.to != "" {
			cmp := compareValues(v, q.to)
			if cmp > 0 || cmp == 0 && !q.includeUpper {
				continue
			}
		}
		return true
	}
	return false
}

// Range matches values between from and to. An empty bound
// means the range is open on that side.
func Range(field, from, to string, includeLower, includeUpper bool) Query {
	return rangeQuery{
		field:        field,
		from:         from,
		to:           to,
		includeLower: includeLower,
		includeUpper: includeUpper,
	}
}

// TimeRange creates a range with the lower bound inclusive and the
// upper bound exclusive (i.e. [from TO to}). Zero times leave the
// respective side open.
func TimeRange(field string, from, to time.Time) Query {
	var f, t string
	if !from.IsZero() {
		f = record.FormatTime(from)
	}
	if !to.IsZero() {
		t = record.FormatTime(to)
	}
	return Range(field, f, t, true, to.IsZero())
}

// compareValues compares time values chronologically, numbers
// numerically and anything else as strings
func compareValues(a, b string) int {
	ta, errA := record.ParseTime(a)
	tb, errB := record.ParseTime(b)
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// CompareValues is exported for stores which need to sort
// documents the same way ranges are evaluated.
func CompareValues(a, b string) int {
	return compareValues(a, b)
}

// ----

type boolQuery struct {
	op    string
	items []Query
}

func (q boolQuery) String() string {
	parts := make([]string, len(q.items))
	for i, item := range q.items {
		parts[i] = item.String()
	}
	return "(" + strings.Join(parts, " "+q.op+" ") + ")"
}

func (q boolQuery) Match(doc record.Doc) bool {
	if q.op == "AND" {
		for _, item := range q.items {
			if !item.Match(doc) {
				return false
			}
		}
		return true
	}
	for _, item := range q.items {
		if item.Match(doc) {
			return true
		}
	}
	return false
}

// And creates a conjunction. With no arguments it matches everything.
func And(items ...Query) Query {
	switch len(items) {
	case 0:
		return All()
	case 1:
		return items[0]
	}
	return boolQuery{op: "AND", items: items}
}

// Or creates a disjunction. With no arguments it matches nothing.
func Or(items ...Query) Query {
	switch len(items) {
	case 0:
		return Not(All())
	case 1:
		return items[0]
	}
	return boolQuery{op: "OR", items: items}
}

// In matches documents with at least one of the values
func In(field string, values ...string) Query {
	items := make([]Query, len(values))
	for i, v := range values {
		items[i] = Term(field, v)
	}
	return Or(items...)
}

// ----

type not struct {
	q Query
}

func (q not) String() string {
	return "(*:* -" + q.q.String() + ")"
}

func (q not) Match(doc record.Doc) bool {
	return !q.q.Match(doc)
}

func Not(q Query) Query {
	return not{q: q}
}

// ----

type raw struct {
	q string
}

func (q raw) String() string {
	return q.q
}

// Match of a raw query is never true as raw queries cannot
// be evaluated outside the search engine. See Evaluable.
func (q raw) Match(doc record.Doc) bool {
	return false
}

// Raw wraps a query written directly in the Solr syntax
// (e.g. provided by a user in a job configuration).
func Raw(q string) Query {
	if strings.TrimSpace(q) == "*:*" {
		return All()
	}
	return raw{q: q}
}

// Evaluable tells whether the query can be evaluated by Match,
// i.e. whether it contains no raw parts.
func Evaluable(q Query) bool {
	switch tq := q.(type) {
	case raw:
		return false
	case not:
		return Evaluable(tq.q)
	case boolQuery:
		for _, item := range tq.items {
			if !Evaluable(item) {
				return false
			}
		}
	}
	return true
}
