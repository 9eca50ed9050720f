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

// Package usage builds statistics documents from usage events
// and writes them to the statistics store.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ustatproc/clientinfo"
	"ustatproc/content"
	"ustatproc/record"
)

type Conf struct {
	// LogBots enables storing of events produced by spiders
	// (marked with isBot=true)
	LogBots        bool         `json:"logBots"`
	UseProxies     bool         `json:"useProxies"`
	AnonymizeOnLog bool         `json:"anonymizeOnLog"`
	Masks          record.Masks `json:"masks"`
	AutoCommit     bool         `json:"autoCommit"`
	EnrichScripts  []string     `json:"enrichScripts"`
}

type SpiderClassifier interface {
	IsSpider(requestIP, userAgent string) bool
}

type DNSResolver interface {
	ReverseDNS(ctx context.Context, ip string) (string, bool)
}

type GeoLocator interface {
	Geolocate(ip string) (record.GeoLocation, bool)
}

// Enricher adds custom fields to a document built from a request
// and an object
type Enricher interface {
	Enrich(doc record.Doc, reqCtx any, obj content.Object) error
}

// Builder assembles statistics documents. All the collaborators
// are optional, a missing one means the respective attributes
// are not derived.
type Builder struct {
	conf      Conf
	spiders   SpiderClassifier
	resolver  DNSResolver
	locator   GeoLocator
	enrichers []Enricher
	nowFn     func() time.Time
}

type BuilderOption func(b *Builder)

func WithSpiderClassifier(c SpiderClassifier) BuilderOption {
	return func(b *Builder) {
		b.spiders = c
	}
}

func WithDNSResolver(r DNSResolver) BuilderOption {
	return func(b *Builder) {
		b.resolver = r
	}
}

func WithGeoLocator(l GeoLocator) BuilderOption {
	return func(b *Builder) {
		b.locator = l
	}
}

func WithEnrichers(e ...Enricher) BuilderOption {
	return func(b *Builder) {
		b.enrichers = append(b.enrichers, e...)
	}
}

func NewBuilder(conf Conf, opts ...BuilderOption) *Builder {
	conf.Masks = conf.Masks.WithDefaults()
	ans := &Builder{
		conf:  conf,
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(ans)
	}
	return ans
}

// newEvent creates an event with client attributes. The returned
// event is nil in case it comes from a spider and bots are not logged.
func (b *Builder) newEvent(
	ctx context.Context,
	cc ClientContext,
	statsType record.StatisticsType,
	epersonID string,
) (*record.UsageEvent, error) {
	ip := clientinfo.ResolveClientIP(cc.RemoteIP, cc.XForwardedFor, b.conf.UseProxies)
	isBot := b.spiders != nil && b.spiders.IsSpider(ip, cc.UserAgent)
	if isBot && !b.conf.LogBots {
		log.Debug().Str("ip", ip).Str("userAgent", cc.UserAgent).Msg("dropping event of a spider")
		return nil, nil
	}
	ev := &record.UsageEvent{
		UID:            uuid.New().String(),
		IP:             ip,
		UserAgent:      cc.UserAgent,
		Referrer:       cc.Referrer,
		IsBot:          isBot,
		Time:           b.nowFn(),
		EPersonID:      epersonID,
		StatisticsType: statsType,
	}
	if ip == "" {
		return ev, nil
	}
	if b.locator != nil {
		if loc, ok := b.locator.Geolocate(ip); ok {
			ev.Location = &loc
		}
	}
	if b.conf.AnonymizeOnLog {
		masked, err := b.conf.Masks.MaskIP(ip)
		if err != nil {
			return nil, err
		}
		ev.IP = masked
		ev.DNS = b.conf.Masks.StoredDNSMask()

	} else if b.resolver != nil {
		if name, ok := b.resolver.ReverseDNS(ctx, ip); ok {
			ev.DNS = name
		}
	}
	return ev, nil
}

func setObject(ev *record.UsageEvent, obj content.Object) {
	ev.ObjectID = obj.ID()
	ev.ObjectType = obj.Type().String()
	anc := content.Ancestors(obj)
	ev.OwningComm = anc.OwningComm
	ev.OwningColl = anc.OwningColl
	ev.OwningItem = anc.OwningItem
	if obj.Type() == content.TypeBitstream {
		ev.BundleNames = content.BundleNames(obj)
	}
}

func (b *Builder) finish(ev *record.UsageEvent, cc ClientContext, obj content.Object) (record.Doc, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", ev.StatisticsType, err)
	}
	doc := ev.ToDoc()
	for _, e := range b.enrichers {
		if err := e.Enrich(doc, cc, obj); err != nil {
			log.Warn().Err(err).Str("uid", ev.UID).Msg("failed to enrich statistics document")
		}
	}
	return doc, nil
}

// BuildView creates a document of an object view. A nil document
// (with nil error) means the event has been dropped.
func (b *Builder) BuildView(
	ctx context.Context,
	obj content.Object,
	cc ClientContext,
	epersonID string,
) (record.Doc, error) {
	if obj == nil {
		return nil, fmt.Errorf("missing viewed object")
	}
	ev, err := b.newEvent(ctx, cc, record.StatsTypeView, epersonID)
	if err != nil || ev == nil {
		return nil, err
	}
	setObject(ev, obj)
	return b.finish(ev, cc, obj)
}

// BuildSearch creates a document of a search. With a search result
// object, the document type is search_result.
func (b *Builder) BuildSearch(
	ctx context.Context,
	search SearchEvent,
	cc ClientContext,
	epersonID string,
) (record.Doc, error) {
	statsType := record.StatsTypeSearch
	if search.Result != nil {
		statsType = record.StatsTypeSearchResult
	}
	ev, err := b.newEvent(ctx, cc, statsType, epersonID)
	if err != nil || ev == nil {
		return nil, err
	}
	if search.Result != nil {
		setObject(ev, search.Result)
	}
	queries := search.Queries
	if len(queries) == 0 {
		queries = []string{""}
	}
	srch := &record.SearchInfo{
		Queries:   queries,
		RPP:       search.RPP,
		Page:      search.Page,
		SortBy:    search.SortBy,
		SortOrder: search.SortOrder,
	}
	if search.Scope != nil {
		srch.ScopeID = search.Scope.ID()
		srch.ScopeType = search.Scope.Type().String()
	}
	ev.Search = srch
	return b.finish(ev, cc, search.Result)
}

// BuildWorkflow creates a document of a workflow step of an item
func (b *Builder) BuildWorkflow(
	ctx context.Context,
	wf WorkflowEvent,
	cc ClientContext,
	epersonID string,
) (record.Doc, error) {
	if wf.Item == nil {
		return nil, fmt.Errorf("missing workflow item")
	}
	ev, err := b.newEvent(ctx, cc, record.StatsTypeWorkflow, epersonID)
	if err != nil || ev == nil {
		return nil, err
	}
	setObject(ev, wf.Item)
	ev.Workflow = &record.WorkflowInfo{
		Step:           wf.Step,
		PreviousStep:   wf.PreviousStep,
		Owners:         wf.Owners(),
		WorkflowItemID: wf.WorkflowItemID,
		Submitter:      wf.Submitter,
		Actor:          wf.Actor,
	}
	return b.finish(ev, cc, wf.Item)
}

// BuildLogin creates a document of a user login
func (b *Builder) BuildLogin(ctx context.Context, cc ClientContext, epersonID string) (record.Doc, error) {
	ev, err := b.newEvent(ctx, cc, record.StatsTypeLogin, epersonID)
	if err != nil || ev == nil {
		return nil, err
	}
	return b.finish(ev, cc, nil)
}
