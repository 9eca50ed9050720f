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

package record

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

const (
	DefaultIPv4Mask = "255"
	DefaultIPv6Mask = "FFFF:FFFF"
	DefaultDNSMask  = "anonymized"
)

// ErrUnknownAddressFamily is returned when an address to be masked
// is neither IPv4 nor IPv6. Such a value must never be written unmasked.
var ErrUnknownAddressFamily = errors.New("unknown address family")

// Masks configures replacement values for anonymized documents
type Masks struct {
	IPv4 string `json:"ip_v4_mask"`
	IPv6 string `json:"ip_v6_mask"`
	DNS  string `json:"dns_mask"`
}

// WithDefaults returns a copy with empty masks replaced
// by their default values.
func (m Masks) WithDefaults() Masks {
	if m.IPv4 == "" {
		m.IPv4 = DefaultIPv4Mask
	}
	if m.IPv6 == "" {
		m.IPv6 = DefaultIPv6Mask
	}
	if m.DNS == "" {
		m.DNS = DefaultDNSMask
	}
	return m
}

// StoredDNSMask is the DNS mask in the form it is written
// to documents (DNS values are always lowercase).
func (m Masks) StoredDNSMask() string {
	return strings.ToLower(m.DNS)
}

// MaskIP replaces the last octet of an IPv4 address or the last
// two groups of an IPv6 address with the configured mask.
func (m Masks) MaskIP(ip string) (string, error) {
	ip = strings.TrimSpace(ip)
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("cannot mask '%s': %w", ip, ErrUnknownAddressFamily)
	}
	if addr.Is4() {
		s := addr.String()
		return s[:strings.LastIndexByte(s, '.')+1] + m.IPv4, nil
	}
	if addr.Is6() {
		last := strings.LastIndexByte(ip, ':')
		prev := strings.LastIndexByte(ip[:last], ':')
		if prev < 0 {
			return "", fmt.Errorf("cannot mask '%s': %w", ip, ErrUnknownAddressFamily)
		}
		return ip[:prev] + ":" + m.IPv6, nil
	}
	return "", fmt.Errorf("cannot mask '%s': %w", ip, ErrUnknownAddressFamily)
}
