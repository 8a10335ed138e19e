// Package mac implements the process-wide MAC allocator, spec §4.1:
// "Uses a fixed 24-bit OUI-like prefix. Generates a suffix derived from
// the target IPv4 (ntohl(ip) & 0xFFFFFF), probes linearly up to 0xFFFFFE,
// checks the process-wide MAC set, returns the first non-colliding value
// or 0 on exhaustion. Insertion enforces prefix membership and optional
// duplicate-check."
package mac

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/cubeek/ovn/pkg/ratelimit"
)

// Prefix is a 24-bit OUI-style prefix, e.g. {0x02, 0x00, 0x00} (locally
// administered). Persisted process-wide per spec §5 "Shared resources".
type Prefix [3]byte

func (p Prefix) Contains(mac net.HardwareAddr) bool {
	return len(mac) == 6 && mac[0] == p[0] && mac[1] == p[1] && mac[2] == p[2]
}

// Set is the process-wide table of every MAC ever allocated from the
// configured prefix (spec §3 "IPAM state": "A process-wide MAC-address
// set tracks every MAC ever allocated").
type Set struct {
	mu      sync.Mutex
	prefix  Prefix
	used    map[[6]byte]bool
	warner  *ratelimit.Warner
}

func NewSet(prefix Prefix) *Set {
	return &Set{prefix: prefix, used: map[[6]byte]bool{}, warner: ratelimit.Every1s()}
}

func key(mac net.HardwareAddr) [6]byte {
	var k [6]byte
	copy(k[:], mac)
	return k
}

// Insert enforces prefix membership and, if checkDuplicate is set, rejects
// a MAC already present in the set (spec §4.1 "Insertion enforces prefix
// membership and optional duplicate-check").
func (s *Set) Insert(mac net.HardwareAddr, checkDuplicate bool) error {
	if !s.prefix.Contains(mac) {
		return fmt.Errorf("mac %s does not have configured prefix %02x:%02x:%02x", mac, s.prefix[0], s.prefix[1], s.prefix[2])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(mac)
	if checkDuplicate && s.used[k] {
		return fmt.Errorf("mac %s already allocated", mac)
	}
	s.used[k] = true
	return nil
}

func (s *Set) Release(mac net.HardwareAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.used, key(mac))
}

// AllocateFromIPv4 derives a suffix from the target IPv4 address
// (ntohl(ip) & 0xFFFFFF), then probes linearly up to 0xFFFFFE for the
// first non-colliding MAC under the configured prefix. Returns a nil
// HardwareAddr on exhaustion (the "0" sentinel from spec §4.1/§7).
func (s *Set) AllocateFromIPv4(ip net.IP) net.HardwareAddr {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	suffix := binary.BigEndian.Uint32(ip4) & 0x00FFFFFF

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := uint32(0); i <= 0xFFFFFE; i++ {
		candidate := (suffix + i) & 0x00FFFFFF
		mac := net.HardwareAddr{
			s.prefix[0], s.prefix[1], s.prefix[2],
			byte(candidate >> 16), byte(candidate >> 8), byte(candidate),
		}
		k := key(mac)
		if !s.used[k] {
			s.used[k] = true
			return mac
		}
	}
	s.warner.Warnf("mac allocator exhausted for prefix %02x:%02x:%02x", s.prefix[0], s.prefix[1], s.prefix[2])
	return nil
}
