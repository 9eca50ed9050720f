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

// Package content models the parts of a repository content hierarchy
// needed for statistics (object identity and ownership).
package content

import (
	"fmt"
)

type ObjectType string

const (
	TypeCommunity  ObjectType = "community"
	TypeCollection ObjectType = "collection"
	TypeItem       ObjectType = "item"
	TypeBundle     ObjectType = "bundle"
	TypeBitstream  ObjectType = "bitstream"
)

func (t ObjectType) Validate() error {
	switch t {
	case TypeCommunity, TypeCollection, TypeItem, TypeBundle, TypeBitstream:
		return nil
	}
	return fmt.Errorf("unknown object type '%s'", t)
}

func (t ObjectType) String() string {
	return string(t)
}

// Object is a repository content object
type Object interface {
	ID() string
	Type() ObjectType

	// Parents returns direct owners of the object
	Parents() []Object
}

type Community struct {
	Identifier        string
	ParentCommunities []*Community
}

func (c *Community) ID() string {
	return c.Identifier
}

func (c *Community) Type() ObjectType {
	return TypeCommunity
}

func (c *Community) Parents() []Object {
	ans := make([]Object, len(c.ParentCommunities))
	for i, p := range c.ParentCommunities {
		ans[i] = p
	}
	return ans
}

type Collection struct {
	Identifier  string
	Communities []*Community
}

func (c *Collection) ID() string {
	return c.Identifier
}

func (c *Collection) Type() ObjectType {
	return TypeCollection
}

func (c *Collection) Parents() []Object {
	ans := make([]Object, len(c.Communities))
	for i, p := range c.Communities {
		ans[i] = p
	}
	return ans
}

type Item struct {
	Identifier  string
	Collections []*Collection
}

func (it *Item) ID() string {
	return it.Identifier
}

func (it *Item) Type() ObjectType {
	return TypeItem
}

func (it *Item) Parents() []Object {
	ans := make([]Object, len(it.Collections))
	for i, p := range it.Collections {
		ans[i] = p
	}
	return ans
}

type Bundle struct {
	Identifier string
	Name       string
	Items      []*Item
}

func (b *Bundle) ID() string {
	return b.Identifier
}

func (b *Bundle) Type() ObjectType {
	return TypeBundle
}

func (b *Bundle) Parents() []Object {
	ans := make([]Object, len(b.Items))
	for i, p := range b.Items {
		ans[i] = p
	}
	return ans
}

type Bitstream struct {
	Identifier string
	Bundles    []*Bundle
}

func (b *Bitstream) ID() string {
	return b.Identifier
}

func (b *Bitstream) Type() ObjectType {
	return TypeBitstream
}

func (b *Bitstream) Parents() []Object {
	ans := make([]Object, len(b.Bundles))
	for i, p := range b.Bundles {
		ans[i] = p
	}
	return ans
}

// BundleNames returns names of bundles a bitstream belongs to.
// Other objects have no bundle names.
func BundleNames(obj Object) []string {
	bs, ok := obj.(*Bitstream)
	if !ok {
		return []string{}
	}
	ans := make([]string, 0, len(bs.Bundles))
	for _, b := range bs.Bundles {
		ans = append(ans, b.Name)
	}
	return ans
}
