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
	"sort"
	"time"
)

const (
	// FieldVersion is assigned by the store on each write and must
	// never be sent back
	FieldVersion = "_version_"

	// FieldShard is a pseudo field the store attaches to documents
	// fetched from a multi-shard query
	FieldShard = "[shard]"

	timeLayout = "2006-01-02T15:04:05.000Z"
)

// FormatTime produces the canonical representation of time values
// stored in statistics documents.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime accepts both the canonical and the shortened forms
// (the store drops zero milliseconds).
func ParseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

// Doc is a statistics document in the form it is stored in
// a statistics core. Each field is a list of values, single-valued
// fields just contain one item.
type Doc map[string][]string

func (d Doc) Get(field string) string {
	v := d[field]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (d Doc) GetAll(field string) []string {
	return d[field]
}

func (d Doc) Has(field string) bool {
	return len(d[field]) > 0
}

// Set replaces all the values of a field. Setting no values
// removes the field.
func (d Doc) Set(field string, values ...string) {
	if len(values) == 0 {
		delete(d, field)
		return
	}
	d[field] = append([]string{}, values...)
}

// Add appends values to a field
func (d Doc) Add(field string, values ...string) {
	if len(values) == 0 {
		return
	}
	d[field] = append(d[field], values...)
}

// RemoveValues removes only the listed values, keeping the rest.
// A field left without values is removed.
func (d Doc) RemoveValues(field string, values ...string) {
	curr, ok := d[field]
	if !ok {
		return
	}
	rm := make(map[string]bool, len(values))
	for _, v := range values {
		rm[v] = true
	}
	kept := make([]string, 0, len(curr))
	for _, v := range curr {
		if !rm[v] {
			kept = append(kept, v)
		}
	}
	d.Set(field, kept...)
}

func (d Doc) Delete(field string) {
	delete(d, field)
}

func (d Doc) Clone() Doc {
	ans := make(Doc, len(d))
	for k, v := range d {
		ans[k] = append([]string{}, v...)
	}
	return ans
}

// Fields returns sorted field names
func (d Doc) Fields() []string {
	ans := make([]string, 0, len(d))
	for k := range d {
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans
}

// StripInternal removes store-assigned fields which must not
// be replayed when writing the document again.
func (d Doc) StripInternal() {
	delete(d, FieldVersion)
	delete(d, FieldShard)
}
