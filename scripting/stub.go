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
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"text/template"
)

type FieldInfo struct {
	Name        string
	Type        string
	IsContainer bool
	ContentType string
	Nested      []FieldInfo
	Indent      string
}

func getTypeString(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "number (integer)"
	case reflect.Float32, reflect.Float64:
		return "number (float)"
	case reflect.Bool:
		return "boolean"
	case reflect.Struct:
		return "table"
	default:
		return t.String()
	}
}

func analyzeStruct(t reflect.Type, indent string) []FieldInfo {
	fields := make([]FieldInfo, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldInfo := FieldInfo{
			Name:   field.Name,
			Indent: indent,
		}
		tp := field.Type
		if tp.Kind() == reflect.Pointer {
			tp = tp.Elem()
		}
		switch tp.Kind() {
		case reflect.Struct:
			fieldInfo.Type = "table (map)"
			fieldInfo.Nested = analyzeStruct(tp, indent+"  ")
		case reflect.Map:
			fieldInfo.Type = "table (map)"
			fieldInfo.IsContainer = true
			fieldInfo.ContentType = fmt.Sprintf("(%v, %v)",
				getTypeString(tp.Key()), getTypeString(tp.Elem()))
		case reflect.Slice, reflect.Array:
			fieldInfo.Type = "table (seq)"
			fieldInfo.IsContainer = true
			fieldInfo.ContentType = getTypeString(tp.Elem())
		default:
			fieldInfo.Type = getTypeString(tp)
		}
		fields = append(fields, fieldInfo)
	}
	return fields
}

const stubTemplate = `--[[
Request context (ctx):
{{range .CtxFields}}
{{.Indent}}{{.Name}} {{.Type}} {{if .IsContainer}}of {{.ContentType}}{{end}}{{range .Nested}}
{{.Indent}}  {{.Name}} {{.Type}} {{if .IsContainer}}of {{.ContentType}}{{end}}{{end}}{{end}}

Object (obj, may be nil):

id string
type string

Document fields (doc):
{{range .DocFields}}
{{.}}{{end}}

Protected fields (cannot be changed):
{{range .Protected}}
{{.}}{{end}}

Document methods:

doc:get(name)              -- first value or nil
doc:get_all(name)          -- table of all values
doc:has(name)
doc:set(name, value, ...)  -- replaces all values
doc:add(name, value, ...)
doc:remove(name [, value, ...])

Configuration properties are available via the 'conf' table,
e.g. conf["usage-statistics.logBots"].

Helper functions:

local docutil = require("docutil")
]]--

-- enrich is called for each statistics document before it is stored
function enrich(doc, ctx, obj)
    if obj ~= nil then
        doc:set("{{.ExampleField}}", obj.type .. ":" .. obj.id)
    end
end
`

// GenerateStub creates a source code of an enrichment script
// with documented input values. The reqCtx argument is a zero value
// of the request context passed to scripts.
func GenerateStub(reqCtx any, docFields []string) (string, error) {
	tp := reflect.TypeOf(reqCtx)
	if tp != nil && tp.Kind() == reflect.Pointer {
		tp = tp.Elem()
	}
	if tp == nil || tp.Kind() != reflect.Struct {
		return "", fmt.Errorf("request context must be a struct, got %v", tp)
	}
	protected := make([]string, 0, len(protectedFields))
	for k := range protectedFields {
		protected = append(protected, k)
	}
	sort.Strings(protected)
	tmpl, err := template.New("luaStub").Parse(stubTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var buf bytes.Buffer
	err = tmpl.Execute(
		&buf,
		struct {
			CtxFields    []FieldInfo
			DocFields    []string
			Protected    []string
			ExampleField string
		}{
			CtxFields:    analyzeStruct(tp, ""),
			DocFields:    docFields,
			Protected:    protected,
			ExampleField: "customObjectKey",
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
