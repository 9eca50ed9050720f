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
	"ustatproc/content"
)

// ClientContext describes the request which produced a usage event.
// Events without a request (e.g. workflow actions) use a zero value.
type ClientContext struct {
	RemoteIP      string
	XForwardedFor string
	UserAgent     string
	Referrer      string

	// Headers are passed to enrichment scripts
	Headers map[string]string
}

type SearchEvent struct {
	Queries []string

	// Scope is the community or collection searched in (optional)
	Scope content.Object

	// Result is the object selected from search results. With
	// a result, the event is stored as search_result.
	Result content.Object

	// RPP is the number of results per page, -1 if unknown
	RPP int

	// Page is the result page, -1 if unknown
	Page      int
	SortBy    string
	SortOrder string
}

type WorkflowEvent struct {
	// Item is the item processed in the workflow
	Item           content.Object
	WorkflowItemID string
	Step           string
	PreviousStep   string
	OwnerGroups    []string
	OwnerEPersons  []string
	Submitter      string
	Actor          string
}

// Owners returns owners prefixed by 'g' (groups) and 'e' (epersons)
func (ev *WorkflowEvent) Owners() []string {
	ans := make([]string, 0, len(ev.OwnerGroups)+len(ev.OwnerEPersons))
	for _, g := range ev.OwnerGroups {
		ans = append(ans, "g"+g)
	}
	for _, e := range ev.OwnerEPersons {
		ans = append(ans, "e"+e)
	}
	return ans
}
