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
	lua "github.com/yuin/gopher-lua"
)

const (
	appConfName = "conf"
)

// ConfProvider exposes configuration properties to scripts
type ConfProvider interface {
	StringMap() map[string]string
}

/*
here we push the configuration so Lua scripts can read it
(e.g. conf["usage-statistics.logBots"])
*/

func registerConf(env *lua.LState, confProvider ConfProvider) {
	val := new(lua.LTable)
	if confProvider != nil {
		for k, v := range confProvider.StringMap() {
			val.RawSetString(k, lua.LString(v))
		}
	}
	env.SetGlobal(appConfName, val)
}
