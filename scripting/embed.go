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
	"embed"
	"fmt"
	"path"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

//go:embed lua/*.lua
var luaScripts embed.FS

func embeddedModuleLoader(srcPath string) lua.LGFunction {
	return func(L *lua.LState) int {
		src, err := luaScripts.ReadFile(srcPath)
		if err != nil {
			L.RaiseError("embedded module %s not readable: %v", srcPath, err)
			return 0
		}
		fn, err := L.LoadString(string(src))
		if err != nil {
			L.RaiseError("failed to load embedded module %s: %v", srcPath, err)
			return 0
		}
		L.Push(fn)
		L.Call(0, 1)
		return 1
	}
}

// preloadEmbeddedModules makes helper modules from the lua directory
// available to scripts via require(name). Modules are compiled on
// their first use.
func preloadEmbeddedModules(L *lua.LState) error {
	entries, err := luaScripts.ReadDir("lua")
	if err != nil {
		return fmt.Errorf("failed to list embedded Lua modules: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		modName := strings.TrimSuffix(entry.Name(), ".lua")
		L.PreloadModule(modName, embeddedModuleLoader(path.Join("lua", entry.Name())))
	}
	return nil
}
