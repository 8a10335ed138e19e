// Package ipam implements the per-switch IPv4 allocator and exclusion-list
// parsing described in spec §3 "IPAM state" and §4.1 "IPv4 allocator":
// a first-free-bit scan over [start, start+count) with a pre-marked
// exclusion set, plus IPv6 EUI-64 derivation for dynamic IPv6 addresses
// (spec §4.3 step 3).
package ipam

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/cubeek/ovn/pkg/allocator/bitmap"
	"github.com/cubeek/ovn/pkg/ratelimit"
)

// Switch is the IPAM state for one logical switch (spec §3 "IPAM state
// (per switch)"): start IPv4 (host order), count, allocated-bitmap;
// optional IPv6 prefix; optional mac-only flag.
type Switch struct {
	Start   uint32 // host order
	Count   int
	bm      *bitmap.AllocationBitmap
	IPv6Prefix *net.IPNet
	MACOnly bool
	warner  *ratelimit.Warner
}

func NewSwitch(subnet *net.IPNet) (*Switch, error) {
	ones, bits := subnet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("ipam subnet %s is not IPv4", subnet)
	}
	count := 1 << (32 - ones)
	if count < 4 {
		return nil, fmt.Errorf("ipam subnet %s too small", subnet)
	}
	start := binary.BigEndian.Uint32(subnet.IP.To4())
	s := &Switch{
		Start: start,
		Count: count,
		bm:    bitmap.NewRoundRobinAllocationMap(count, subnet.String()),
		warner: ratelimit.Every1s(),
	}
	// the network address (offset 0) and the switch's first address (by
	// convention the gateway, ".1") are never dynamically assigned, spec §8
	// property 5.
	_, _ = s.bm.Allocate(0)
	_, _ = s.bm.Allocate(1)
	return s, nil
}

func (s *Switch) offset(ip net.IP) (int, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	v := binary.BigEndian.Uint32(ip4)
	if v < s.Start || v >= s.Start+uint32(s.Count) {
		return 0, false
	}
	return int(v - s.Start), true
}

func (s *Switch) ipAt(offset int) net.IP {
	v := s.Start + uint32(offset)
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// Reserve marks ip as used without going through AllocateNext; used to
// pre-register statically-configured and previously-dynamic addresses
// before the allocation pass (spec §4.3 step 2).
func (s *Switch) Reserve(ip net.IP) error {
	off, ok := s.offset(ip)
	if !ok {
		return fmt.Errorf("ip %s outside ipam range", ip)
	}
	ok, err := s.bm.Allocate(off)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ip %s already reserved", ip)
	}
	return nil
}

// Exclude marks a single address as permanently unavailable for dynamic
// allocation (spec §4.1 "Exclusion list parsing").
func (s *Switch) Exclude(ip net.IP) error {
	return s.Reserve(ip)
}

// AllocateNext performs the first-free-bit scan described in spec §4.1,
// returning nil on exhaustion (the "0" sentinel, spec §7).
func (s *Switch) AllocateNext() net.IP {
	for off := 0; off < s.Count; off++ {
		if ok, _ := s.bm.Allocate(off); ok {
			return s.ipAt(off)
		}
	}
	s.warner.Warnf("ipv4 pool exhausted for subnet starting at offset 0 size %d", s.Count)
	return nil
}

func (s *Switch) Release(ip net.IP) {
	if off, ok := s.offset(ip); ok {
		s.bm.Release(off)
	}
}

// ParseExclusions recognizes single addresses and "A..B" ranges (spec
// §4.1), reporting any entry that falls outside subnet.
func ParseExclusions(subnet *net.IPNet, entries []string) ([]net.IP, []error) {
	var ips []net.IP
	var errs []error
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "..") {
			parts := strings.SplitN(e, "..", 2)
			a := net.ParseIP(strings.TrimSpace(parts[0])).To4()
			b := net.ParseIP(strings.TrimSpace(parts[1])).To4()
			if a == nil || b == nil {
				errs = append(errs, fmt.Errorf("malformed exclusion range %q", e))
				continue
			}
			av := binary.BigEndian.Uint32(a)
			bv := binary.BigEndian.Uint32(b)
			if av > bv {
				errs = append(errs, fmt.Errorf("exclusion range %q has reversed bounds", e))
				continue
			}
			rangeOK := true
			for v := av; v <= bv; v++ {
				ip := make(net.IP, 4)
				binary.BigEndian.PutUint32(ip, v)
				if !subnet.Contains(ip) {
					errs = append(errs, fmt.Errorf("excluded address %s not in subnet %s", ip, subnet))
					rangeOK = false
					break
				}
				ips = append(ips, ip)
			}
			if !rangeOK {
				continue
			}
		} else {
			ip := net.ParseIP(e).To4()
			if ip == nil {
				errs = append(errs, fmt.Errorf("malformed exclusion address %q", e))
				continue
			}
			if !subnet.Contains(ip) {
				errs = append(errs, fmt.Errorf("excluded address %s not in subnet %s", ip, subnet))
				continue
			}
			ips = append(ips, ip)
		}
	}
	return ips, errs
}

// EUI64 derives an IPv6 address from prefix and mac using the modified
// EUI-64 algorithm (spec §4.3 step 3: "IPv6 (EUI-64 derived from the MAC
// and the switch IPv6 prefix)").
func EUI64(prefix *net.IPNet, mac net.HardwareAddr) (net.IP, error) {
	if len(mac) != 6 {
		return nil, fmt.Errorf("eui64 requires a 6-byte MAC, got %d bytes", len(mac))
	}
	ones, bits := prefix.Mask.Size()
	if bits != 128 || ones > 64 {
		return nil, fmt.Errorf("eui64 requires an IPv6 prefix of length <= 64, got /%d", ones)
	}
	var iid [8]byte
	iid[0] = mac[0] ^ 0x02
	iid[1] = mac[1]
	iid[2] = mac[2]
	iid[3] = 0xff
	iid[4] = 0xfe
	iid[5] = mac[3]
	iid[6] = mac[4]
	iid[7] = mac[5]

	ip := make(net.IP, 16)
	copy(ip, prefix.IP.To16())
	copy(ip[8:], iid[:])
	return ip, nil
}
