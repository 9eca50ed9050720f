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

package ctype

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxExpandedPrefixes = 4096

type ipRange struct {
	from netip.Addr
	to   netip.Addr
}

func (r ipRange) contains(addr netip.Addr) bool {
	return r.from.Compare(addr) <= 0 && addr.Compare(r.to) <= 0
}

// IPTable is a set of IP addresses specified by single addresses,
// dotted partial prefixes (e.g. 66.249.66), CIDR blocks and dash
// separated ranges.
type IPTable struct {
	prefixes []netip.Prefix
	ranges   []ipRange
	entries  []string
}

func NewIPTable() *IPTable {
	return &IPTable{
		prefixes: make([]netip.Prefix, 0, 100),
		ranges:   make([]ipRange, 0, 10),
		entries:  make([]string, 0, 100),
	}
}

func parsePartialIPv4(entry string) (netip.Prefix, error) {
	items := strings.Split(strings.TrimSuffix(entry, "."), ".")
	if len(items) == 0 || len(items) > 4 {
		return netip.Prefix{}, fmt.Errorf("invalid IP entry '%s'", entry)
	}
	var octets [4]byte
	for i, item := range items {
		v, err := strconv.ParseUint(item, 10, 8)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid IP entry '%s': %w", entry, err)
		}
		octets[i] = byte(v)
	}
	return netip.PrefixFrom(netip.AddrFrom4(octets), len(items)*8), nil
}

// Add inserts an entry to the table
func (t *IPTable) Add(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return fmt.Errorf("empty IP entry")
	}
	if from, to, ok := strings.Cut(entry, "-"); ok {
		fromAddr, err := netip.ParseAddr(strings.TrimSpace(from))
		if err != nil {
			return fmt.Errorf("invalid IP range '%s': %w", entry, err)
		}
		toAddr, err := netip.ParseAddr(strings.TrimSpace(to))
		if err != nil {
			return fmt.Errorf("invalid IP range '%s': %w", entry, err)
		}
		if fromAddr.Is4() != toAddr.Is4() || toAddr.Less(fromAddr) {
			return fmt.Errorf("invalid IP range '%s'", entry)
		}
		t.ranges = append(t.ranges, ipRange{from: fromAddr, to: toAddr})

	} else if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return fmt.Errorf("invalid CIDR block '%s': %w", entry, err)
		}
		t.prefixes = append(t.prefixes, prefix.Masked())

	} else if addr, err := netip.ParseAddr(entry); err == nil {
		t.prefixes = append(t.prefixes, netip.PrefixFrom(addr, addr.BitLen()))

	} else {
		prefix, err := parsePartialIPv4(entry)
		if err != nil {
			return err
		}
		t.prefixes = append(t.prefixes, prefix)
	}
	t.entries = append(t.entries, entry)
	return nil
}

// Contains tells whether ip belongs to the table. Malformed
// addresses are never contained.
func (t *IPTable) Contains(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	for _, r := range t.ranges {
		if r.contains(addr) {
			return true
		}
	}
	return false
}

func (t *IPTable) Size() int {
	return len(t.entries)
}

// Entries returns the table entries as they were added
func (t *IPTable) Entries() []string {
	return append([]string{}, t.entries...)
}

func dottedPrefix(addr netip.Addr, octets int) string {
	b := addr.As4()
	items := make([]string, octets)
	for i := 0; i < octets; i++ {
		items[i] = strconv.Itoa(int(b[i]))
	}
	if octets == 4 {
		return strings.Join(items, ".")
	}
	return strings.Join(items, ".") + "."
}

func expandPrefix(p netip.Prefix, ans map[string]bool) {
	octets := (p.Bits() + 7) / 8
	if p.Bits() == 0 || octets == 0 {
		return
	}
	if p.Bits()%8 == 0 {
		ans[dottedPrefix(p.Addr(), octets)] = true
		return
	}
	// non octet-aligned blocks are expanded to the closest longer aligned prefixes
	count := 1 << (octets*8 - p.Bits())
	step := 1 << (32 - octets*8)
	start := p.Addr().As4()
	base := uint32(start[0])<<24 | uint32(start[1])<<16 | uint32(start[2])<<8 | uint32(start[3])
	for i := 0; i < count; i++ {
		v := base + uint32(i*step)
		addr := netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
		ans[dottedPrefix(addr, octets)] = true
	}
}

// Prefixes returns IPv4 entries as dotted prefixes usable for text
// prefix matching of stored addresses. Full addresses are returned
// without the trailing dot. IPv6 entries are not included.
func (t *IPTable) Prefixes() []string {
	tmp := make(map[string]bool)
	for _, p := range t.prefixes {
		if p.Addr().Is4() {
			expandPrefix(p, tmp)
		}
	}
	for _, r := range t.ranges {
		if !r.from.Is4() {
			continue
		}
		n := 0
		for a := r.from; a.Compare(r.to) <= 0 && n < maxExpandedPrefixes; a = a.Next() {
			tmp[a.String()] = true
			n++
		}
		if n == maxExpandedPrefixes {
			log.Warn().
				Str("from", r.from.String()).
				Str("to", r.to.String()).
				Msg("IP range too large to be fully expanded, truncating")
		}
	}
	ans := make([]string, 0, len(tmp))
	for k := range tmp {
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans
}
