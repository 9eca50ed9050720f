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

package clientinfo

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"
)

const (
	defaultResolvConf      = "/etc/resolv.conf"
	defaultResolverTimeout = 200
	defaultCacheTTLSecs    = 3600
	defaultCacheSize       = 10000
)

type ResolverConf struct {
	// Servers are resolver addresses (host or host:port). Empty means
	// servers from /etc/resolv.conf.
	Servers      []string `json:"servers"`
	TimeoutMs    int      `json:"timeout"`
	CacheTTLSecs int      `json:"cacheTTLSecs"`
	CacheSize    int      `json:"cacheSize"`
}

func (conf *ResolverConf) Validate() error {
	if conf.TimeoutMs <= 0 {
		log.Warn().Int("default", defaultResolverTimeout).Msg("resolver.timeout not specified, using default")
		conf.TimeoutMs = defaultResolverTimeout
	}
	if conf.CacheTTLSecs <= 0 {
		conf.CacheTTLSecs = defaultCacheTTLSecs
	}
	if conf.CacheSize <= 0 {
		conf.CacheSize = defaultCacheSize
	}
	return nil
}

// Resolver performs reverse DNS lookups. Both found names and failed
// lookups are cached.
type Resolver struct {
	servers  []string
	client   *dns.Client
	cache    *ristretto.Cache[string, string]
	cacheTTL time.Duration
}

func normalizeServer(s string) string {
	if _, _, err := net.SplitHostPort(s); err == nil {
		return s
	}
	return net.JoinHostPort(s, "53")
}

func NewResolver(conf *ResolverConf) (*Resolver, error) {
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, normalizeServer(s))
	}
	if len(servers) == 0 {
		cc, err := dns.ClientConfigFromFile(defaultResolvConf)
		if err != nil {
			return nil, fmt.Errorf("failed to load resolver configuration: %w", err)
		}
		for _, s := range cc.Servers {
			servers = append(servers, net.JoinHostPort(s, cc.Port))
		}
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters:        int64(conf.CacheSize) * 10,
		MaxCost:            int64(conf.CacheSize),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DNS cache: %w", err)
	}
	return &Resolver{
		servers:  servers,
		client:   &dns.Client{Timeout: time.Duration(conf.TimeoutMs) * time.Millisecond},
		cache:    cache,
		cacheTTL: time.Duration(conf.CacheTTLSecs) * time.Second,
	}, nil
}

func (r *Resolver) lookup(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true
	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			return "", fmt.Errorf("lookup of %s failed: %s", arpa, dns.RcodeToString[resp.Rcode])
		}
		for _, rr := range resp.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(strings.ToLower(ptr.Ptr), "."), nil
			}
		}
		return "", fmt.Errorf("no PTR record for %s", arpa)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no DNS servers configured")
	}
	return "", lastErr
}

// ReverseDNS returns the (lowercase) host name of ip. Any failure
// results in ok == false.
func (r *Resolver) ReverseDNS(ctx context.Context, ip string) (string, bool) {
	if name, found := r.cache.Get(ip); found {
		return name, name != ""
	}
	name, err := r.lookup(ctx, ip)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("reverse DNS lookup failed")
	}
	r.cache.SetWithTTL(ip, name, 1, r.cacheTTL)
	r.cache.Wait()
	return name, name != ""
}

func (r *Resolver) Close() {
	r.cache.Close()
}
