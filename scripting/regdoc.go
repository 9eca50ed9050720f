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
	"reflect"
	"strconv"
	"time"

	lua "github.com/yuin/gopher-lua"

	"ustatproc/record"
)

const (
	docMTName = "statsdoc_mt"
)

// fields enrichers are not allowed to change
var protectedFields = map[string]bool{
	record.FieldUID:            true,
	record.FieldTime:           true,
	record.FieldStatisticsType: true,
	record.FieldVersion:        true,
	record.FieldShard:          true,
}

func importField(L *lua.LState, field reflect.Value) lua.LValue {
	switch field.Kind() {
	case reflect.String:
		return lua.LString(field.String())
	case reflect.Int, reflect.Int64:
		return lua.LNumber(float64(field.Int()))
	case reflect.Float64:
		return lua.LNumber(field.Float())
	case reflect.Bool:
		return lua.LBool(field.Bool())
	case reflect.Pointer, reflect.Interface:
		if field.IsNil() {
			return lua.LNil
		}
		return importField(L, field.Elem())
	case reflect.Slice:
		tbl := L.NewTable()
		for i := 0; i < field.Len(); i++ {
			elem := field.Index(i)
			L.RawSetInt(tbl, i+1, importField(L, elem))
		}
		return tbl
	case reflect.Map:
		tbl := L.NewTable()
		iter := field.MapRange()
		for iter.Next() {
			key := iter.Key()
			value := importField(L, iter.Value())
			L.RawSet(tbl, lua.LString(key.String()), value)
		}
		return tbl
	case reflect.Struct:
		if tVal, ok := field.Interface().(time.Time); ok {
			return lua.LString(tVal.Format(time.RFC3339))
		}
		tbl := L.NewTable()
		tp := field.Type()
		for i := 0; i < field.NumField(); i++ {
			if !tp.Field(i).IsExported() {
				continue
			}
			L.RawSet(tbl, lua.LString(tp.Field(i).Name), importField(L, field.Field(i)))
		}
		return tbl
	}
	return lua.LNil
}

// importValue converts a Go value (typically a request context struct)
// into a Lua table with fields named as the struct fields
func importValue(L *lua.LState, v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	return importField(L, reflect.ValueOf(v))
}

func checkDoc(L *lua.LState, pos int) record.Doc {
	ud := L.CheckUserData(pos)
	if v, ok := ud.Value.(record.Doc); ok {
		return v
	}
	L.ArgError(pos, "statistics document expected")
	return nil
}

func argValues(L *lua.LState, from int) []string {
	ans := make([]string, 0, L.GetTop()-from+1)
	for i := from; i <= L.GetTop(); i++ {
		switch tv := L.Get(i).(type) {
		case lua.LString:
			ans = append(ans, string(tv))
		case lua.LNumber:
			ans = append(ans, strconv.FormatFloat(float64(tv), 'f', -1, 64))
		case lua.LBool:
			ans = append(ans, strconv.FormatBool(bool(tv)))
		case *lua.LTable:
			items, err := LuaTableToSliceOfStrings(tv)
			if err != nil {
				L.ArgError(i, fmt.Sprintf("table of strings expected: %s", err))
			}
			ans = append(ans, items...)
		default:
			L.ArgError(i, "string, number, bool or table of strings expected")
		}
	}
	return ans
}

func checkWritable(L *lua.LState, field string) {
	if protectedFields[field] {
		L.RaiseError("%s", InvalidAttrError{Attr: field})
	}
}

var docMethods = map[string]lua.LGFunction{
	"get": func(L *lua.LState) int {
		doc := checkDoc(L, 1)
		field := L.CheckString(2)
		if !doc.Has(field) {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(doc.Get(field)))
		return 1
	},
	"get_all": func(L *lua.LState) int {
		doc := checkDoc(L, 1)
		field := L.CheckString(2)
		tbl := L.NewTable()
		for i, v := range doc.GetAll(field) {
			tbl.RawSetInt(i+1, lua.LString(v))
		}
		L.Push(tbl)
		return 1
	},
	"has": func(L *lua.LState) int {
		doc := checkDoc(L, 1)
		L.Push(lua.LBool(doc.Has(L.CheckString(2))))
		return 1
	},
	"set": func(L *lua.LState) int {
		doc := checkDoc(L, 1)
		field := L.CheckString(2)
		checkWritable(L, field)
		doc.Set(field, argValues(L, 3)...)
		return 0
	},
	"add": func(L *lua.LState) int {
		doc := checkDoc(L, 1)
		field := L.CheckString(2)
		checkWritable(L, field)
		doc.Add(field, argValues(L, 3)...)
		return 0
	},
	"remove": func(L *lua.LState) int {
		doc := checkDoc(L, 1)
		field := L.CheckString(2)
		checkWritable(L, field)
		values := argValues(L, 3)
		if len(values) == 0 {
			doc.Delete(field)

		} else {
			doc.RemoveValues(field, values...)
		}
		return 0
	},
}

func importDoc(L *lua.LState, doc record.Doc) lua.LValue {
	d := L.NewUserData()
	d.Value = doc
	L.SetMetatable(d, L.GetTypeMetatable(docMTName))
	return d
}

func registerDoc(L *lua.LState) {
	mt := L.NewTypeMetatable(docMTName)
	L.SetGlobal(docMTName, mt)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), docMethods))
}
