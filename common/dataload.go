// Copyright 2017 Tomas Machalek <tomas.machalek@gmail.com>
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

package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const httpResourceTimeout = 30 * time.Second

var httpClient = resty.New().SetTimeout(httpResourceTimeout)

func loadHTTPResource(url string) ([]byte, error) {
	resp, err := httpClient.R().Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("resource loading error: %s (url: %s)", resp.Status(), url)
	}
	return resp.Body(), nil
}

// LoadSupportedResource loads raw byte data of a configuration
// resource (e.g. a spider list).
// Allowed formats are:
// 1) http://..., https://...
// 2) file:/localhost/..., file:///...
// 3) /abs/fs/path, rel/fs/path
func LoadSupportedResource(uri string) ([]byte, error) {
	if uri == "" {
		return nil, fmt.Errorf("no resource (http, file) specified")
	}
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return loadHTTPResource(uri)

	} else if strings.HasPrefix(uri, "file:/localhost/") {
		return os.ReadFile(uri[len("file:/localhost/")-1:])

	} else if strings.HasPrefix(uri, "file:///") {
		return os.ReadFile(uri[len("file:///")-1:])
	}
	// we assume a common fs path
	return os.ReadFile(uri)
}

// LoadLines loads a resource with one item per line. Empty lines
// and lines starting with '#' are skipped.
func LoadLines(uri string) ([]string, error) {
	data, err := LoadSupportedResource(uri)
	if err != nil {
		return nil, err
	}
	ans := make([]string, 0, 100)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ans = append(ans, line)
	}
	return ans, nil
}
