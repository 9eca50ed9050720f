// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
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

package scripting

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"ustatproc/content"
	"ustatproc/record"
)

func prepareScript(env *lua.LState, srcPath string) error {
	if err := env.DoFile(srcPath); err != nil {
		return fmt.Errorf("failed to process enrichment script %s: %w", srcPath, err)
	}
	return nil
}

func newState(conf ConfProvider) (*lua.LState, error) {
	L := lua.NewState()
	registerDoc(L)
	registerConf(L, conf)
	if err := preloadEmbeddedModules(L); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

// CreateEnricherFromSource creates an enricher from Lua source code
func CreateEnricherFromSource(name, sourceCode string, conf ConfProvider) (*Enricher, error) {
	L, err := newState(conf)
	if err != nil {
		return nil, err
	}
	if err := L.DoString(sourceCode); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to process enrichment source code: %w", err)
	}
	return newEnricher(name, L)
}

// CreateEnricher loads an enrichment script. The script must define
// function enrich(doc, ctx, obj).
func CreateEnricher(scriptPath string, conf ConfProvider) (*Enricher, error) {
	L, err := newState(conf)
	if err != nil {
		return nil, err
	}
	if err := prepareScript(L, scriptPath); err != nil {
		L.Close()
		return nil, err
	}
	return newEnricher(scriptPath, L)
}

func newEnricher(name string, L *lua.LState) (*Enricher, error) {
	if L.GetGlobal("enrich") == lua.LNil {
		L.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrMissingEnrichFn)
	}
	log.Info().Str("script", name).Msg("loaded enrichment script")
	return &Enricher{env: L, name: name}, nil
}

// ------------------------------------

// Enricher adds custom fields to statistics documents by calling
// a Lua function. A Lua state cannot be shared among goroutines so
// calls are serialized.
type Enricher struct {
	mu   sync.Mutex
	env  *lua.LState
	name string
}

func (e *Enricher) Name() string {
	return e.name
}

// Enrich calls enrich(doc, ctx, obj). The document is modified in place,
// ctx is converted to a table, obj is passed as a table with id and type
// (or nil).
func (e *Enricher) Enrich(doc record.Doc, reqCtx any, obj content.Object) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var luaObj lua.LValue = lua.LNil
	if obj != nil {
		tbl := e.env.NewTable()
		tbl.RawSetString("id", lua.LString(obj.ID()))
		tbl.RawSetString("type", lua.LString(obj.Type().String()))
		luaObj = tbl
	}
	err := e.env.CallByParam(
		lua.P{
			Fn:      e.env.GetGlobal("enrich"),
			NRet:    0,
			Protect: true,
		},
		importDoc(e.env, doc), importValue(e.env, reqCtx), luaObj,
	)
	if err != nil {
		return fmt.Errorf("enrichment script %s failed: %w", e.name, err)
	}
	return nil
}

func (e *Enricher) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.env.Close()
}
