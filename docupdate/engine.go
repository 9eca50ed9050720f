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

// Package docupdate modifies already stored statistics documents.
// The store has no partial updates so each matching document is
// fetched, deleted and written again in a modified form. A document
// is lost in case its re-insertion fails after the deletion.
// The engine must not run concurrently with another update
// of overlapping documents.
package docupdate

import (
	"context"
	"errors"
	"fmt"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/rs/zerolog/log"

	"ustatproc/query"
	"ustatproc/record"
	"ustatproc/save"
	"ustatproc/shards"
)

const DefaultPageSize = 10

var ErrDocumentsLost = errors.New("documents lost during update")

type Action string

const (
	ActionAddOne  Action = "addOne"
	ActionReplace Action = "replace"
	ActionRemOne  Action = "remOne"
)

func (a Action) Validate() error {
	switch a {
	case ActionAddOne, ActionReplace, ActionRemOne:
		return nil
	}
	return fmt.Errorf("unknown update action '%s'", a)
}

// Fields maps field names to values used by an update action
type Fields map[string][]string

// Apply mutates doc according to the action
func (a Action) Apply(doc record.Doc, fields Fields) {
	for field, values := range fields {
		switch a {
		case ActionAddOne:
			doc.Add(field, values...)
		case ActionReplace:
			doc.Set(field, values...)
		case ActionRemOne:
			doc.RemoveValues(field, values...)
		}
	}
}

type Result struct {
	Matched int64    `json:"matched"`
	Updated int      `json:"updated"`
	Lost    []string `json:"lost"`
}

type Engine struct {
	store    save.Store
	router   *shards.Router
	pageSize int
}

func NewEngine(store save.Store, router *shards.Router) *Engine {
	return &Engine{
		store:    store,
		router:   router,
		pageSize: DefaultPageSize,
	}
}

func (e *Engine) reinsert(ctx context.Context, doc record.Doc, action Action, fields Fields) (string, error) {
	core := e.router.ResolveShard(ctx, doc.Get(record.FieldShard))
	uid := doc.Get(record.FieldUID)
	if err := e.store.DeleteByQuery(ctx, core, query.Term(record.FieldUID, uid)); err != nil {
		return core, fmt.Errorf("failed to delete original document %s: %w", uid, err)
	}
	upd := doc.Clone()
	action.Apply(upd, fields)
	upd.StripInternal()
	if err := e.store.Add(ctx, core, upd); err != nil {
		log.Error().
			Err(err).
			Str("uid", uid).
			Str("core", core).
			Msg("failed to re-insert updated document, the document is lost")
		return core, ErrDocumentsLost
	}
	return core, nil
}

// Update applies action with fields to all the documents matching q
// in all the shards. With commit set, each touched core is committed
// at the end. Documents which could not be re-inserted are listed
// in Result.Lost and the returned error wraps ErrDocumentsLost.
func (e *Engine) Update(
	ctx context.Context,
	q query.Query,
	action Action,
	fields Fields,
	commit bool,
) (Result, error) {
	var ans Result
	if err := action.Validate(); err != nil {
		return ans, err
	}
	touched := make([]string, 0, 4)
	cursor := save.CursorStart
	for {
		resp, err := e.router.QueryAcrossShards(ctx, save.SelectRequest{
			Query:          q,
			Rows:           e.pageSize,
			CursorMark:     cursor,
			Sort:           []save.SortField{{Field: record.FieldUID}},
			WithShardField: true,
		})
		if err != nil {
			return ans, fmt.Errorf("failed to fetch documents to update: %w", err)
		}
		if cursor == save.CursorStart {
			ans.Matched = resp.NumFound
		}
		for _, doc := range resp.Docs {
			core, err := e.reinsert(ctx, doc, action, fields)
			if !collections.SliceContains(touched, core) {
				touched = append(touched, core)
			}
			if errors.Is(err, ErrDocumentsLost) {
				ans.Lost = append(ans.Lost, doc.Get(record.FieldUID))
				continue

			} else if err != nil {
				return ans, err
			}
			ans.Updated++
		}
		if resp.NextCursorMark == "" || resp.NextCursorMark == cursor || len(resp.Docs) == 0 {
			break
		}
		cursor = resp.NextCursorMark
	}
	if commit {
		for _, core := range touched {
			if err := e.store.Commit(ctx, core); err != nil {
				return ans, fmt.Errorf("failed to commit %s: %w", core, err)
			}
		}
	}
	log.Info().
		Str("query", q.String()).
		Str("action", string(action)).
		Int64("matched", ans.Matched).
		Int("updated", ans.Updated).
		Int("lost", len(ans.Lost)).
		Msg("statistics documents updated")
	if len(ans.Lost) > 0 {
		return ans, fmt.Errorf("%d of %d documents: %w", len(ans.Lost), ans.Matched, ErrDocumentsLost)
	}
	return ans, nil
}

// Commit commits all the known cores
func (e *Engine) Commit(ctx context.Context) error {
	cores, err := e.router.Discover(ctx)
	if err != nil {
		return err
	}
	for _, core := range cores {
		if err := e.store.Commit(ctx, core); err != nil {
			return fmt.Errorf("failed to commit %s: %w", core, err)
		}
	}
	return nil
}

// Count returns the number of documents matching q in all the shards
func (e *Engine) Count(ctx context.Context, q query.Query) (int64, error) {
	resp, err := e.router.QueryAcrossShards(ctx, save.SelectRequest{Query: q, Rows: 0})
	if err != nil {
		return 0, err
	}
	return resp.NumFound, nil
}
