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
	"context"
	"fmt"
	"sync"
)

// Provider finds content objects by their type and identifier
type Provider interface {
	Find(ctx context.Context, objType ObjectType, id string) (Object, error)
}

// Repository is an in-memory Provider
type Repository struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewRepository(objects ...Object) *Repository {
	ans := &Repository{objects: make(map[string]Object)}
	for _, obj := range objects {
		ans.Put(obj)
	}
	return ans
}

func (r *Repository) Put(obj Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[objectKey(obj)] = obj
}

func (r *Repository) Find(ctx context.Context, objType ObjectType, id string) (Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[string(objType)+":"+id]
	if !ok {
		return nil, fmt.Errorf("%s %s not found", objType, id)
	}
	return obj, nil
}
