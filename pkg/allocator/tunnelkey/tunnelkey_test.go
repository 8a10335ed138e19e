package tunnelkey

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Tunnel key allocation", func() {
	ginkgo.Context("the pure allocation rule", func() {
		ginkgo.It("returns the smallest unused key strictly above the hint", func() {
			used := map[int]bool{1: true, 2: true, 4: true}
			key, exhausted := Allocate(used, 2, 1, 10)
			gomega.Expect(exhausted).To(gomega.BeFalse())
			gomega.Expect(key).To(gomega.Equal(3))
		})

		ginkgo.It("wraps around to min once the hint is past max", func() {
			used := map[int]bool{}
			key, exhausted := Allocate(used, 10, 1, 10)
			gomega.Expect(exhausted).To(gomega.BeFalse())
			gomega.Expect(key).To(gomega.Equal(1))
		})

		ginkgo.It("reports exhaustion once every key in range is used", func() {
			used := map[int]bool{1: true, 2: true, 3: true}
			_, exhausted := Allocate(used, 0, 1, 3)
			gomega.Expect(exhausted).To(gomega.BeTrue())
		})
	})

	ginkgo.Context("Pool", func() {
		var p *Pool

		ginkgo.BeforeEach(func() {
			p = NewPool("test-pool", 1, 4)
		})

		ginkgo.It("reserves pre-seeded keys so Next never reallocates them", func() {
			p.Reserve(2)
			gomega.Expect(p.IsUsed(2)).To(gomega.BeTrue())
			k := p.Next(0)
			gomega.Expect(k).To(gomega.Equal(1))
		})

		ginkgo.It("returns 0 once the pool is exhausted", func() {
			for i := 0; i < 4; i++ {
				k := p.Next(0)
				gomega.Expect(k).NotTo(gomega.Equal(0))
			}
			gomega.Expect(p.Next(0)).To(gomega.Equal(0))
		})

		ginkgo.It("makes a released key available again", func() {
			k := p.Next(0)
			p.Release(k)
			gomega.Expect(p.IsUsed(k)).To(gomega.BeFalse())
		})

		ginkgo.It("tracks the highest reserved key via MaxUsed", func() {
			p.Reserve(1)
			p.Reserve(3)
			gomega.Expect(p.MaxUsed()).To(gomega.Equal(3))
		})
	})
})

func TestTunnelKeyAllocator(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Tunnel key allocator Operations Suite")
}
