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

package scripting

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

var (
	ErrMissingEnrichFn     = errors.New("missing `enrich` function")
	ErrFailedTypeAssertion = errors.New("failed type assertion")
)

type InvalidAttrError struct {
	Attr string
}

func (err InvalidAttrError) Error() string {
	return fmt.Sprintf("attribute '%s' cannot be modified", err.Attr)
}

func LuaTableToSliceOfStrings(val *lua.LTable) ([]string, error) {
	tableSize := val.Len()
	ans := make([]string, tableSize)
	for i := 1; i <= tableSize; i++ { // note: Lua tables are 1-based
		v := val.RawGetInt(i)
		if tv, ok := v.(lua.LString); ok {
			ans[i-1] = string(tv)

		} else {
			return ans, ErrFailedTypeAssertion
		}
	}
	return ans, nil
}
