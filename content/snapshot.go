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

package content

import (
	"encoding/json"
	"fmt"

	"ustatproc/common"
)

type communityDef struct {
	ID      string   `json:"id"`
	Parents []string `json:"parents"`
}

type collectionDef struct {
	ID          string   `json:"id"`
	Communities []string `json:"communities"`
}

type itemDef struct {
	ID          string   `json:"id"`
	Collections []string `json:"collections"`
}

type bundleDef struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

type bitstreamDef struct {
	ID      string   `json:"id"`
	Bundles []string `json:"bundles"`
}

// Snapshot is a stored form of a content hierarchy. Owners
// are referenced by their identifiers.
type Snapshot struct {
	Communities []communityDef  `json:"communities"`
	Collections []collectionDef `json:"collections"`
	Items       []itemDef       `json:"items"`
	Bundles     []bundleDef     `json:"bundles"`
	Bitstreams  []bitstreamDef  `json:"bitstreams"`
}

func resolve[T any](index map[string]*T, ids []string, kind, owner string) ([]*T, error) {
	ans := make([]*T, 0, len(ids))
	for _, id := range ids {
		v, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%s of %s: unknown id %s", kind, owner, id)
		}
		ans = append(ans, v)
	}
	return ans, nil
}

// Repository creates a repository with all the objects of the snapshot
func (s *Snapshot) Repository() (*Repository, error) {
	comms := make(map[string]*Community, len(s.Communities))
	for _, def := range s.Communities {
		comms[def.ID] = &Community{Identifier: def.ID}
	}
	var err error
	for _, def := range s.Communities {
		comms[def.ID].ParentCommunities, err = resolve(comms, def.Parents, "parent community", def.ID)
		if err != nil {
			return nil, err
		}
	}
	colls := make(map[string]*Collection, len(s.Collections))
	for _, def := range s.Collections {
		coll := &Collection{Identifier: def.ID}
		if coll.Communities, err = resolve(comms, def.Communities, "community", def.ID); err != nil {
			return nil, err
		}
		colls[def.ID] = coll
	}
	items := make(map[string]*Item, len(s.Items))
	for _, def := range s.Items {
		item := &Item{Identifier: def.ID}
		if item.Collections, err = resolve(colls, def.Collections, "collection", def.ID); err != nil {
			return nil, err
		}
		items[def.ID] = item
	}
	bundles := make(map[string]*Bundle, len(s.Bundles))
	for _, def := range s.Bundles {
		bundle := &Bundle{Identifier: def.ID, Name: def.Name}
		if bundle.Items, err = resolve(items, def.Items, "item", def.ID); err != nil {
			return nil, err
		}
		bundles[def.ID] = bundle
	}
	ans := NewRepository()
	for _, def := range s.Bitstreams {
		bs := &Bitstream{Identifier: def.ID}
		if bs.Bundles, err = resolve(bundles, def.Bundles, "bundle", def.ID); err != nil {
			return nil, err
		}
		ans.Put(bs)
	}
	for _, v := range comms {
		ans.Put(v)
	}
	for _, v := range colls {
		ans.Put(v)
	}
	for _, v := range items {
		ans.Put(v)
	}
	for _, v := range bundles {
		ans.Put(v)
	}
	return ans, nil
}

// LoadRepository loads a snapshot (JSON) from a local file or via http(s)
func LoadRepository(uri string) (*Repository, error) {
	data, err := common.LoadSupportedResource(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to load content snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse content snapshot: %w", err)
	}
	return snapshot.Repository()
}
