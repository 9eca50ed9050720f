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

package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCore           = "statistics"
	DefaultConfigSet      = "statistics"
	defaultReqTimeoutSecs = 30
)

type ConnectionConf struct {
	// Server is the Solr base URL without a core
	// (e.g. http://localhost:8983/solr)
	Server string `json:"server"`

	// Core is the live statistics core receiving new documents
	Core           string `json:"core"`
	ConfigSet      string `json:"configset"`
	ReqTimeoutSecs int    `json:"reqTimeoutSecs"`
}

func (conf *ConnectionConf) IsConfigured() bool {
	return conf.Server != ""
}

func (conf *ConnectionConf) Validate() error {
	if !conf.IsConfigured() {
		return fmt.Errorf("missing Solr server URL")
	}
	if _, err := url.Parse(conf.Server); err != nil {
		return fmt.Errorf("invalid Solr server URL: %w", err)
	}
	if conf.Core == "" {
		log.Warn().Str("default", DefaultCore).Msg("solr-statistics.core not specified, using default")
		conf.Core = DefaultCore
	}
	if conf.ConfigSet == "" {
		log.Warn().Str("default", DefaultConfigSet).Msg("solr-statistics.configset not specified, using default")
		conf.ConfigSet = DefaultConfigSet
	}
	if conf.ReqTimeoutSecs == 0 {
		conf.ReqTimeoutSecs = defaultReqTimeoutSecs
	}
	return nil
}

// ErrorResultObj is an error as reported by Solr
type ErrorResultObj struct {
	Error struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	} `json:"error"`
}

func (ero ErrorResultObj) String() string {
	if ero.Error.Msg == "" {
		return "unknown error"
	}
	return fmt.Sprintf("{code: %d, msg: %s}", ero.Error.Code, ero.Error.Msg)
}

type ClientError struct {
	Message   string
	Status    int
	Params    url.Values
	SolrError ErrorResultObj
}

func (sce *ClientError) Error() string {
	return fmt.Sprintf("%s: %s", sce.Message, sce.SolrError)
}

func (sce *ClientError) NotFound() bool {
	return sce.Status == http.StatusNotFound
}

func newClientError(message string, status int, response []byte, params url.Values) *ClientError {
	var errResult ErrorResultObj
	json.Unmarshal(response, &errResult)
	return &ClientError{Message: message, Status: status, Params: params, SolrError: errResult}
}

// IsNotFound tells whether err is a Solr response with the 404 status
func IsNotFound(err error) bool {
	var cerr *ClientError
	return errors.As(err, &cerr) && cerr.NotFound()
}

// Client accesses Solr cores over HTTP. It implements save.Store.
type Client struct {
	http      *resty.Client
	server    string
	configSet string
}

func NewClient(conf *ConnectionConf) *Client {
	server := strings.TrimRight(conf.Server, "/")
	httpClient := resty.New().
		SetBaseURL(server).
		SetTimeout(time.Second*time.Duration(conf.ReqTimeoutSecs)).
		SetHeader("Accept", "application/json")
	return &Client{
		http:      httpClient,
		server:    server,
		configSet: conf.ConfigSet,
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("SolrClient[server: %s]", c.server)
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	params url.Values,
	contentType string,
	body any,
) ([]byte, error) {
	req := c.http.R().SetContext(ctx).SetQueryParamsFromValues(params)
	if body != nil {
		req.SetHeader("Content-Type", contentType).SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}
	if resp.IsError() {
		return resp.Body(), newClientError(
			fmt.Sprintf("request %s failed with code %d", path, resp.StatusCode()),
			resp.StatusCode(),
			resp.Body(),
			params,
		)
	}
	return resp.Body(), nil
}

func (c *Client) doJSON(
	ctx context.Context,
	method string,
	path string,
	params url.Values,
	body any,
	ans any,
) error {
	resp, err := c.do(ctx, method, path, params, "application/json", body)
	if err != nil {
		return err
	}
	if ans == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(resp))
	dec.UseNumber()
	if err := dec.Decode(ans); err != nil {
		return fmt.Errorf("failed to decode response of %s: %w", path, err)
	}
	return nil
}

func corePath(core, path string) string {
	return "/" + core + path
}

func jsonParams() url.Values {
	return url.Values{"wt": []string{"json"}}
}
