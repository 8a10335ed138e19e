package ipam

import (
	"net"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

var _ = ginkgo.Describe("Per-switch IPv4 IPAM", func() {
	ginkgo.Context("NewSwitch", func() {
		ginkgo.It("rejects a non-IPv4 subnet", func() {
			_, err := NewSwitch(mustCIDR("2001:db8::/64"))
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("rejects a subnet too small to allocate from", func() {
			_, err := NewSwitch(mustCIDR("10.0.0.0/31"))
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("reserves the network address on creation", func() {
			s, err := NewSwitch(mustCIDR("10.1.1.0/24"))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(s.Reserve(net.ParseIP("10.1.1.0"))).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Context("AllocateNext", func() {
		var s *Switch

		ginkgo.BeforeEach(func() {
			var err error
			s, err = NewSwitch(mustCIDR("10.1.1.0/24"))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		})

		ginkgo.It("allocates addresses contiguously starting after the reserved first address", func() {
			first := s.AllocateNext()
			gomega.Expect(first.String()).To(gomega.Equal("10.1.1.2"))
			second := s.AllocateNext()
			gomega.Expect(second.String()).To(gomega.Equal("10.1.1.3"))
		})

		ginkgo.It("skips a reserved address", func() {
			gomega.Expect(s.Reserve(net.ParseIP("10.1.1.2"))).NotTo(gomega.HaveOccurred())
			gomega.Expect(s.AllocateNext().String()).To(gomega.Equal("10.1.1.3"))
		})

		ginkgo.It("makes a released address available again", func() {
			ip := s.AllocateNext()
			s.Release(ip)
			gomega.Expect(s.AllocateNext().String()).To(gomega.Equal(ip.String()))
		})
	})

	ginkgo.Context("ParseExclusions", func() {
		subnet := mustCIDR("10.1.1.0/24")

		ginkgo.It("parses a single excluded address", func() {
			ips, errs := ParseExclusions(subnet, []string{"10.1.1.5"})
			gomega.Expect(errs).To(gomega.BeEmpty())
			gomega.Expect(ips).To(gomega.HaveLen(1))
			gomega.Expect(ips[0].String()).To(gomega.Equal("10.1.1.5"))
		})

		ginkgo.It("expands an A..B range", func() {
			ips, errs := ParseExclusions(subnet, []string{"10.1.1.2..10.1.1.4"})
			gomega.Expect(errs).To(gomega.BeEmpty())
			gomega.Expect(ips).To(gomega.HaveLen(3))
		})

		ginkgo.It("reports an address outside the subnet", func() {
			_, errs := ParseExclusions(subnet, []string{"10.2.2.2"})
			gomega.Expect(errs).To(gomega.HaveLen(1))
		})

		ginkgo.It("reports a reversed range", func() {
			_, errs := ParseExclusions(subnet, []string{"10.1.1.5..10.1.1.2"})
			gomega.Expect(errs).To(gomega.HaveLen(1))
		})
	})

	ginkgo.Context("EUI64", func() {
		ginkgo.It("derives the interface id from the MAC with the universal/local bit flipped", func() {
			prefix := mustCIDR("2001:db8::/64")
			ip, err := EUI64(prefix, net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ip.String()).To(gomega.Equal("2001:db8::211:22ff:fe33:4455"))
		})

		ginkgo.It("rejects a prefix longer than /64", func() {
			prefix := mustCIDR("2001:db8::/96")
			_, err := EUI64(prefix, net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})
})

func TestIPAMAllocator(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Per-switch IPAM Operations Suite")
}
