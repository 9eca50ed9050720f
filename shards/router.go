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

package shards

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"sync"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/rs/zerolog/log"

	"ustatproc/save"
)

// Router keeps the set of per-year statistics cores and makes
// queries span all of them. The set is discovered once, the first
// successful discovery is kept for the lifetime of the router.
type Router struct {
	store         save.Store
	liveCore      string
	shardedByYear bool
	yearCoreRegex *regexp.Regexp

	mu          sync.Mutex
	initialized bool
	yearCores   []string
}

func NewRouter(store save.Store, liveCore string, shardedByYear bool) *Router {
	return &Router{
		store:         store,
		liveCore:      liveCore,
		shardedByYear: shardedByYear,
		yearCoreRegex: regexp.MustCompile("^" + regexp.QuoteMeta(liveCore) + `-\d{4}$`),
	}
}

// LiveCore is the core receiving new documents
func (r *Router) LiveCore() string {
	return r.liveCore
}

// YearCoreName returns the name of a core holding documents of the year
func (r *Router) YearCoreName(year int) string {
	return fmt.Sprintf("%s-%d", r.liveCore, year)
}

// CoreOfShard returns the core name of a shard address as found
// in the record.FieldShard pseudo field
func CoreOfShard(address string) string {
	return path.Base(address)
}

func (r *Router) discover(ctx context.Context) error {
	if r.initialized {
		return nil
	}
	if !r.shardedByYear {
		r.initialized = true
		return nil
	}
	names, err := r.store.ListCores(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover statistics shards: %w", err)
	}
	found := make([]string, 0, len(names))
	for _, name := range names {
		if name == r.liveCore || !r.yearCoreRegex.MatchString(name) {
			continue
		}
		if err := r.store.Ping(ctx, name); err != nil {
			log.Warn().Err(err).Str("core", name).Msg("statistics shard not reachable, trying to create it")
			if err := r.store.CreateCore(ctx, name); err != nil {
				log.Error().Err(err).Str("core", name).Msg("failed to create statistics shard, excluding it")
				continue
			}
		}
		found = append(found, name)
	}
	sort.Strings(found)
	r.yearCores = found
	r.initialized = true
	log.Info().Strs("shards", found).Msg("discovered statistics shards")
	return nil
}

// Discover returns the names of all the known cores (the live core
// first). Discovery runs at most once. A failed discovery is not
// cached so a later call may succeed.
func (r *Router) Discover(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.discover(ctx); err != nil {
		return nil, err
	}
	ans := make([]string, 0, len(r.yearCores)+1)
	ans = append(ans, r.liveCore)
	ans = append(ans, r.yearCores...)
	return ans, nil
}

// ShardAddresses returns addresses of all the known cores usable
// as save.SelectRequest.Shards. With a single core, the result is empty
// as no cross-shard query is needed.
func (r *Router) ShardAddresses(ctx context.Context) ([]string, error) {
	cores, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(cores) < 2 {
		return []string{}, nil
	}
	ans := make([]string, len(cores))
	for i, c := range cores {
		ans[i] = r.store.ShardAddress(c)
	}
	return ans, nil
}

// ResolveShard maps a shard address (see CoreOfShard) to a known core.
// Unknown addresses (e.g. the placeholder Solr returns for
// a non-distributed request) resolve to the live core.
func (r *Router) ResolveShard(ctx context.Context, address string) string {
	if address == "" {
		return r.liveCore
	}
	cores, err := r.Discover(ctx)
	if err != nil {
		return r.liveCore
	}
	if name := CoreOfShard(address); collections.SliceContains(cores, name) {
		return name
	}
	return r.liveCore
}

// QueryAcrossShards runs a select on the live core with all
// the known shards attached.
func (r *Router) QueryAcrossShards(ctx context.Context, req save.SelectRequest) (*save.SelectResponse, error) {
	shards, err := r.ShardAddresses(ctx)
	if err != nil {
		return nil, err
	}
	req.Shards = shards
	return r.store.Select(ctx, r.liveCore, req)
}

// CreateOrGetShard makes sure a core exists (pinging it first) and
// registers it among known shards.
func (r *Router) CreateOrGetShard(ctx context.Context, name string) error {
	if err := r.store.Ping(ctx, name); err != nil {
		log.Info().Err(err).Str("core", name).Msg("statistics shard does not respond, creating")
		if err := r.store.CreateCore(ctx, name); err != nil {
			return fmt.Errorf("failed to create shard %s: %w", name, err)
		}
	}
	if name == r.liveCore || !r.yearCoreRegex.MatchString(name) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized && r.shardedByYear && !collections.SliceContains(r.yearCores, name) {
		r.yearCores = append(r.yearCores, name)
		sort.Strings(r.yearCores)
	}
	return nil
}
