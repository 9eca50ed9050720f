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

// Ancestry contains identifiers of all the owners of an object
// in the order they were found
type Ancestry struct {
	OwningComm []string
	OwningColl []string
	OwningItem []string
}

func objectKey(obj Object) string {
	return string(obj.Type()) + ":" + obj.ID()
}

func (a *Ancestry) collect(obj Object, visited map[string]bool) {
	for _, parent := range obj.Parents() {
		if parent == nil {
			continue
		}
		key := objectKey(parent)
		if visited[key] {
			continue
		}
		visited[key] = true
		switch parent.Type() {
		case TypeCommunity:
			a.OwningComm = append(a.OwningComm, parent.ID())
		case TypeCollection:
			a.OwningColl = append(a.OwningColl, parent.ID())
		case TypeItem:
			a.OwningItem = append(a.OwningItem, parent.ID())
		}
		a.collect(parent, visited)
	}
}

// Ancestors walks ownership edges upwards and returns all the owners
// of obj. Each owner is listed once, the object itself is never
// included (even within malformed cyclic hierarchies).
func Ancestors(obj Object) Ancestry {
	ans := Ancestry{
		OwningComm: []string{},
		OwningColl: []string{},
		OwningItem: []string{},
	}
	if obj == nil {
		return ans
	}
	visited := map[string]bool{objectKey(obj): true}
	ans.collect(obj, visited)
	return ans
}
