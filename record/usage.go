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
	"fmt"
	"sort"
	"strconv"
	"time"
)

const (
	FieldUID            = "uid"
	FieldID             = "id"
	FieldType           = "type"
	FieldIP             = "ip"
	FieldDNS            = "dns"
	FieldUserAgent      = "userAgent"
	FieldReferrer       = "referrer"
	FieldIsBot          = "isBot"
	FieldCountryCode    = "countryCode"
	FieldCity           = "city"
	FieldContinent      = "continent"
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
	FieldOwningColl     = "owningColl"
	FieldOwningComm     = "owningComm"
	FieldOwningItem     = "owningItem"
	FieldBundleName     = "bundleName"
	FieldTime           = "time"
	FieldEPersonID      = "epersonid"
	FieldStatisticsType = "statistics_type"

	FieldQuery     = "query"
	FieldScopeID   = "scopeId"
	FieldScopeType = "scopeType"
	FieldRPP       = "rpp"
	FieldSortBy    = "sortBy"
	FieldSortOrder = "sortOrder"
	FieldPage      = "page"

	FieldWorkflowStep         = "workflowStep"
	FieldPreviousWorkflowStep = "previousWorkflowStep"
	FieldOwner                = "owner"
	FieldWorkflowItemID       = "workflowItemId"
	FieldSubmitter            = "submitter"
	FieldActor                = "actor"
)

// MultiValuedFields lists fields declared as multi-valued
// by the statistics schema.
var MultiValuedFields = []string{
	FieldOwningColl, FieldOwningComm, FieldOwningItem, FieldBundleName,
	FieldQuery, FieldOwner,
}

var (
	searchFields = []string{
		FieldQuery, FieldScopeID, FieldScopeType, FieldRPP, FieldSortBy, FieldSortOrder, FieldPage,
	}
	workflowFields = []string{
		FieldWorkflowStep, FieldPreviousWorkflowStep, FieldOwner, FieldWorkflowItemID,
		FieldSubmitter, FieldActor,
	}
	geoFields = []string{
		FieldCountryCode, FieldCity, FieldContinent, FieldLatitude, FieldLongitude,
	}
	knownFields map[string]bool
)

func init() {
	knownFields = map[string]bool{
		FieldUID: true, FieldID: true, FieldType: true, FieldIP: true, FieldDNS: true,
		FieldUserAgent: true, FieldReferrer: true, FieldIsBot: true, FieldOwningColl: true,
		FieldOwningComm: true, FieldOwningItem: true, FieldBundleName: true, FieldTime: true,
		FieldEPersonID: true, FieldStatisticsType: true,
	}
	for _, f := range searchFields {
		knownFields[f] = true
	}
	for _, f := range workflowFields {
		knownFields[f] = true
	}
	for _, f := range geoFields {
		knownFields[f] = true
	}
}

type StatisticsType string

const (
	StatsTypeView         StatisticsType = "view"
	StatsTypeSearch       StatisticsType = "search"
	StatsTypeSearchResult StatisticsType = "search_result"
	StatsTypeWorkflow     StatisticsType = "workflow"
	StatsTypeLogin        StatisticsType = "login"
)

func (st StatisticsType) Validate() error {
	switch st {
	case StatsTypeView, StatsTypeSearch, StatsTypeSearchResult, StatsTypeWorkflow, StatsTypeLogin:
		return nil
	}
	return fmt.Errorf("unknown statistics type '%s'", st)
}

func (st StatisticsType) isSearch() bool {
	return st == StatsTypeSearch || st == StatsTypeSearchResult
}

// GeoLocation is always stored as a whole. Partial locations
// do not exist.
type GeoLocation struct {
	CountryCode string
	City        string
	Continent   string
	Latitude    float64
	Longitude   float64
}

type SearchInfo struct {
	Queries   []string
	ScopeID   string
	ScopeType string

	// RPP is the number of results per page, -1 if unknown
	RPP int

	// Page is the result page, -1 if unknown
	Page      int
	SortBy    string
	SortOrder string
}

type WorkflowInfo struct {
	Step         string
	PreviousStep string

	// Owners are prefixed with 'g' (group) or 'e' (eperson)
	Owners         []string
	WorkflowItemID string
	Submitter      string
	Actor          string
}

// UsageEvent is a typed form of a statistics document.
type UsageEvent struct {
	UID            string
	ObjectID       string
	ObjectType     string
	IP             string
	DNS            string
	UserAgent      string
	Referrer       string
	IsBot          bool
	Location       *GeoLocation
	OwningComm     []string
	OwningColl     []string
	OwningItem     []string
	BundleNames    []string
	Time           time.Time
	EPersonID      string
	StatisticsType StatisticsType
	Search         *SearchInfo
	Workflow       *WorkflowInfo

	// Extra contains fields set by additional enrichers
	Extra Doc
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func setIfNotEmpty(doc Doc, field, value string) {
	if value != "" {
		doc.Set(field, value)
	}
}

// Validate checks that the fields required by the event's statistics
// type are present and no fields of other types are set.
func (ev *UsageEvent) Validate() error {
	if err := ev.StatisticsType.Validate(); err != nil {
		return err
	}
	if ev.Time.IsZero() {
		return fmt.Errorf("missing time")
	}
	if !ev.StatisticsType.isSearch() && ev.Search != nil {
		return fmt.Errorf("search data not allowed for %s events", ev.StatisticsType)
	}
	if ev.StatisticsType != StatsTypeWorkflow && ev.Workflow != nil {
		return fmt.Errorf("workflow data not allowed for %s events", ev.StatisticsType)
	}
	switch ev.StatisticsType {
	case StatsTypeView:
		if ev.ObjectID == "" || ev.ObjectType == "" {
			return fmt.Errorf("view event requires object id and type")
		}
	case StatsTypeSearch:
		if ev.Search == nil {
			return fmt.Errorf("search event requires search data")
		}
	case StatsTypeSearchResult:
		if ev.Search == nil || ev.ObjectID == "" || ev.ObjectType == "" {
			return fmt.Errorf("search_result event requires search data and a result object")
		}
	case StatsTypeWorkflow:
		if ev.Workflow == nil || ev.ObjectID == "" || ev.ObjectType == "" {
			return fmt.Errorf("workflow event requires workflow data and an item")
		}
		if ev.Workflow.WorkflowItemID == "" || ev.Workflow.Step == "" {
			return fmt.Errorf("workflow event requires workflow item id and step")
		}
	case StatsTypeLogin:
		if ev.EPersonID == "" {
			return fmt.Errorf("login event requires eperson id")
		}
	}
	return nil
}

// ToDoc converts the event into its stored form. Fields of Extra
// are applied last.
func (ev *UsageEvent) ToDoc() Doc {
	doc := make(Doc)
	setIfNotEmpty(doc, FieldUID, ev.UID)
	setIfNotEmpty(doc, FieldID, ev.ObjectID)
	setIfNotEmpty(doc, FieldType, ev.ObjectType)
	setIfNotEmpty(doc, FieldIP, ev.IP)
	setIfNotEmpty(doc, FieldDNS, ev.DNS)
	setIfNotEmpty(doc, FieldUserAgent, ev.UserAgent)
	setIfNotEmpty(doc, FieldReferrer, ev.Referrer)
	doc.Set(FieldIsBot, strconv.FormatBool(ev.IsBot))
	if ev.Location != nil {
		doc.Set(FieldCountryCode, ev.Location.CountryCode)
		setIfNotEmpty(doc, FieldCity, ev.Location.City)
		setIfNotEmpty(doc, FieldContinent, ev.Location.Continent)
		doc.Set(FieldLatitude, formatFloat(ev.Location.Latitude))
		doc.Set(FieldLongitude, formatFloat(ev.Location.Longitude))
	}
	doc.Set(FieldOwningComm, ev.OwningComm...)
	doc.Set(FieldOwningColl, ev.OwningColl...)
	doc.Set(FieldOwningItem, ev.OwningItem...)
	doc.Set(FieldBundleName, ev.BundleNames...)
	doc.Set(FieldTime, FormatTime(ev.Time))
	setIfNotEmpty(doc, FieldEPersonID, ev.EPersonID)
	doc.Set(FieldStatisticsType, string(ev.StatisticsType))

	if srch := ev.Search; srch != nil {
		doc.Set(FieldQuery, srch.Queries...)
		setIfNotEmpty(doc, FieldScopeID, srch.ScopeID)
		setIfNotEmpty(doc, FieldScopeType, srch.ScopeType)
		if srch.RPP != -1 {
			doc.Set(FieldRPP, strconv.Itoa(srch.RPP))
		}
		if srch.Page != -1 {
			doc.Set(FieldPage, strconv.Itoa(srch.Page))
		}
		if srch.SortBy != "" {
			doc.Set(FieldSortBy, srch.SortBy)
			setIfNotEmpty(doc, FieldSortOrder, srch.SortOrder)
		}
	}

	if wf := ev.Workflow; wf != nil {
		doc.Set(FieldWorkflowStep, wf.Step)
		setIfNotEmpty(doc, FieldPreviousWorkflowStep, wf.PreviousStep)
		doc.Set(FieldOwner, wf.Owners...)
		doc.Set(FieldWorkflowItemID, wf.WorkflowItemID)
		setIfNotEmpty(doc, FieldSubmitter, wf.Submitter)
		setIfNotEmpty(doc, FieldActor, wf.Actor)
	}

	for k, v := range ev.Extra {
		doc.Set(k, v...)
	}
	return doc
}

func copyValues(v []string) []string {
	if len(v) == 0 {
		return nil
	}
	return append([]string{}, v...)
}

func parseOptInt(doc Doc, field string) (int, error) {
	if !doc.Has(field) {
		return -1, nil
	}
	v, err := strconv.Atoi(doc.Get(field))
	if err != nil {
		return -1, fmt.Errorf("invalid value of %s: %w", field, err)
	}
	return v, nil
}

// FromDoc restores a typed event from a stored document. Store-assigned
// fields are ignored, unknown fields end up in Extra.
func FromDoc(doc Doc) (*UsageEvent, error) {
	ev := &UsageEvent{
		UID:            doc.Get(FieldUID),
		ObjectID:       doc.Get(FieldID),
		ObjectType:     doc.Get(FieldType),
		IP:             doc.Get(FieldIP),
		DNS:            doc.Get(FieldDNS),
		UserAgent:      doc.Get(FieldUserAgent),
		Referrer:       doc.Get(FieldReferrer),
		OwningComm:     copyValues(doc.GetAll(FieldOwningComm)),
		OwningColl:     copyValues(doc.GetAll(FieldOwningColl)),
		OwningItem:     copyValues(doc.GetAll(FieldOwningItem)),
		BundleNames:    copyValues(doc.GetAll(FieldBundleName)),
		EPersonID:      doc.Get(FieldEPersonID),
		StatisticsType: StatisticsType(doc.Get(FieldStatisticsType)),
	}
	var err error
	if doc.Has(FieldIsBot) {
		ev.IsBot, err = strconv.ParseBool(doc.Get(FieldIsBot))
		if err != nil {
			return nil, fmt.Errorf("invalid value of %s: %w", FieldIsBot, err)
		}
	}
	ev.Time, err = ParseTime(doc.Get(FieldTime))
	if err != nil {
		return nil, fmt.Errorf("invalid value of %s: %w", FieldTime, err)
	}
	if doc.Has(FieldCountryCode) {
		loc := &GeoLocation{
			CountryCode: doc.Get(FieldCountryCode),
			City:        doc.Get(FieldCity),
			Continent:   doc.Get(FieldContinent),
		}
		loc.Latitude, err = strconv.ParseFloat(doc.Get(FieldLatitude), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value of %s: %w", FieldLatitude, err)
		}
		loc.Longitude, err = strconv.ParseFloat(doc.Get(FieldLongitude), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value of %s: %w", FieldLongitude, err)
		}
		ev.Location = loc
	}
	if ev.StatisticsType.isSearch() {
		srch := &SearchInfo{
			Queries:   copyValues(doc.GetAll(FieldQuery)),
			ScopeID:   doc.Get(FieldScopeID),
			ScopeType: doc.Get(FieldScopeType),
			SortBy:    doc.Get(FieldSortBy),
			SortOrder: doc.Get(FieldSortOrder),
		}
		if srch.RPP, err = parseOptInt(doc, FieldRPP); err != nil {
			return nil, err
		}
		if srch.Page, err = parseOptInt(doc, FieldPage); err != nil {
			return nil, err
		}
		ev.Search = srch
	}
	if ev.StatisticsType == StatsTypeWorkflow {
		ev.Workflow = &WorkflowInfo{
			Step:           doc.Get(FieldWorkflowStep),
			PreviousStep:   doc.Get(FieldPreviousWorkflowStep),
			Owners:         copyValues(doc.GetAll(FieldOwner)),
			WorkflowItemID: doc.Get(FieldWorkflowItemID),
			Submitter:      doc.Get(FieldSubmitter),
			Actor:          doc.Get(FieldActor),
		}
	}
	for k, v := range doc {
		if !knownFields[k] && k != FieldVersion && k != FieldShard {
			if ev.Extra == nil {
				ev.Extra = make(Doc)
			}
			ev.Extra.Set(k, v...)
		}
	}
	return ev, nil
}

// KnownFields returns sorted names of all the fields of statistics
// documents created from usage events
func KnownFields() []string {
	ans := make([]string, 0, len(knownFields))
	for k := range knownFields {
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans
}
