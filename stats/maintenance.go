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

package stats

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"ustatproc/query"
	"ustatproc/record"
)

// DeleteEverywhere removes matching documents from all the shards
// and commits each of them.
func (s *Service) DeleteEverywhere(ctx context.Context, q query.Query) error {
	cores, err := s.router.Discover(ctx)
	if err != nil {
		return err
	}
	for _, core := range cores {
		if err := s.store.DeleteByQuery(ctx, core, q); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", core, err)
		}
		if err := s.store.Commit(ctx, core); err != nil {
			return fmt.Errorf("failed to commit %s: %w", core, err)
		}
		log.Debug().Str("core", core).Str("query", q.String()).Msg("deleted statistics documents")
	}
	return nil
}

// DeleteRobotsByIsBotFlag removes all documents marked as bots
func (s *Service) DeleteRobotsByIsBotFlag(ctx context.Context) error {
	return s.DeleteEverywhere(ctx, query.Term(record.FieldIsBot, "true"))
}

// DeleteIP removes all documents recorded from ip (an address
// or a dotted prefix ending with a dot)
func (s *Service) DeleteIP(ctx context.Context, ip string) error {
	return s.DeleteEverywhere(ctx, spiderIPQuery([]string{ip}))
}

// DeleteRobotsByIP removes documents of all the known spider IPs
func (s *Service) DeleteRobotsByIP(ctx context.Context) error {
	if s.spiderIPs == nil {
		return fmt.Errorf("no spider IP list available")
	}
	prefixes := s.spiderIPs.SpiderIPPrefixes()
	if len(prefixes) == 0 {
		return nil
	}
	return s.DeleteEverywhere(ctx, spiderIPQuery(prefixes))
}

// RemoveObject removes statistics of a deleted content object
func (s *Service) RemoveObject(ctx context.Context, objType, id string) error {
	return s.DeleteEverywhere(
		ctx,
		query.And(query.Term(record.FieldType, objType), query.Term(record.FieldID, id)),
	)
}
