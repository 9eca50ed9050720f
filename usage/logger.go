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
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"ustatproc/content"
	"ustatproc/record"
)

// DocWriter is a destination of built documents
type DocWriter interface {
	Add(ctx context.Context, docs ...record.Doc) error
	Commit(ctx context.Context) error
}

// IngestError describes an event which could not be stored.
// The event is lost, it is up to the caller whether it reports it.
type IngestError struct {
	StatisticsType record.StatisticsType
	Err            error
}

func (err *IngestError) Error() string {
	return fmt.Sprintf("failed to store %s event: %s", err.StatisticsType, err.Err)
}

func (err *IngestError) Unwrap() error {
	return err.Err
}

// Logger builds documents of usage events and writes them
// to the statistics store.
type Logger struct {
	builder    *Builder
	writer     DocWriter
	autoCommit bool
	metrics    *Metrics
}

// NewLogger creates a logger. The metrics argument may be nil.
func NewLogger(builder *Builder, writer DocWriter, autoCommit bool, metrics *Metrics) *Logger {
	return &Logger{
		builder:    builder,
		writer:     writer,
		autoCommit: autoCommit,
		metrics:    metrics,
	}
}

func (l *Logger) post(
	ctx context.Context,
	statsType record.StatisticsType,
	doc record.Doc,
	buildErr error,
) error {
	if buildErr != nil {
		l.metrics.incFailed(statsType)
		if errors.Is(buildErr, record.ErrUnknownAddressFamily) {
			return buildErr
		}
		return &IngestError{StatisticsType: statsType, Err: buildErr}
	}
	if doc == nil {
		l.metrics.incDropped(statsType)
		return nil
	}
	if err := l.writer.Add(ctx, doc); err != nil {
		l.metrics.incFailed(statsType)
		return &IngestError{StatisticsType: statsType, Err: err}
	}
	if !l.autoCommit {
		if err := l.writer.Commit(ctx); err != nil {
			l.metrics.incFailed(statsType)
			return &IngestError{StatisticsType: statsType, Err: err}
		}
	}
	l.metrics.incPosted(statsType)
	log.Debug().
		Str("uid", doc.Get(record.FieldUID)).
		Str("statisticsType", string(statsType)).
		Msg("stored usage event")
	return nil
}

func (l *Logger) PostView(ctx context.Context, obj content.Object, cc ClientContext, epersonID string) error {
	doc, err := l.builder.BuildView(ctx, obj, cc, epersonID)
	return l.post(ctx, record.StatsTypeView, doc, err)
}

func (l *Logger) PostSearch(ctx context.Context, search SearchEvent, cc ClientContext, epersonID string) error {
	statsType := record.StatsTypeSearch
	if search.Result != nil {
		statsType = record.StatsTypeSearchResult
	}
	doc, err := l.builder.BuildSearch(ctx, search, cc, epersonID)
	return l.post(ctx, statsType, doc, err)
}

func (l *Logger) PostWorkflow(ctx context.Context, wf WorkflowEvent, cc ClientContext, epersonID string) error {
	doc, err := l.builder.BuildWorkflow(ctx, wf, cc, epersonID)
	return l.post(ctx, record.StatsTypeWorkflow, doc, err)
}

func (l *Logger) PostLogin(ctx context.Context, cc ClientContext, epersonID string) error {
	doc, err := l.builder.BuildLogin(ctx, cc, epersonID)
	return l.post(ctx, record.StatsTypeLogin, doc, err)
}

// LogAndDrop reports a failed event without propagating the error
// further. It is intended for request handlers which must not fail
// because of statistics.
func LogAndDrop(err error) {
	if err == nil {
		return
	}
	var ingErr *IngestError
	if errors.As(err, &ingErr) {
		log.Error().Err(ingErr.Err).Str("statisticsType", string(ingErr.StatisticsType)).Msg("usage event lost")
		return
	}
	log.Error().Err(err).Msg("usage event rejected")
}
