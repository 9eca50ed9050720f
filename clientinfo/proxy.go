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

// Package clientinfo derives client attributes of a request (the real
// client address, its host name and location). All the lookups are best
// effort, failures only cause the respective attributes to be missing.
package clientinfo

import (
	"net/netip"
	"strings"
)

// ResolveClientIP returns the client address. With useProxies, the
// X-Forwarded-For header is searched for the last address different
// from the remote one. Tokens which are not IP addresses are ignored.
func ResolveClientIP(rawIP, xForwardedFor string, useProxies bool) string {
	rawIP = strings.TrimSpace(rawIP)
	if !useProxies || xForwardedFor == "" {
		return rawIP
	}
	ans := rawIP
	for _, token := range strings.Split(xForwardedFor, ",") {
		token = strings.TrimSpace(token)
		if token == "" || token == rawIP {
			continue
		}
		if _, err := netip.ParseAddr(token); err != nil {
			continue
		}
		ans = token
	}
	return ans
}
