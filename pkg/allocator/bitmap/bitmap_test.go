package bitmap

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Bitmap allocator operations", func() {
	var a *AllocationBitmap

	ginkgo.BeforeEach(func() {
		a = NewRoundRobinAllocationMap(8, "test-range")
	})

	ginkgo.Context("when allocating a specific offset", func() {
		ginkgo.It("reserves it and reports it as taken", func() {
			ok, err := a.Allocate(3)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(a.Has(3)).To(gomega.BeTrue())
			gomega.Expect(a.Free()).To(gomega.Equal(7))
		})

		ginkgo.It("refuses a second reservation of the same offset", func() {
			_, err := a.Allocate(3)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			ok, err := a.Allocate(3)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("rejects an offset outside the range", func() {
			_, err := a.Allocate(99)
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Context("when allocating the next free offset", func() {
		ginkgo.It("resumes scanning after the last allocation instead of restarting at zero", func() {
			first, ok, err := a.AllocateNext()
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())

			second, ok, err := a.AllocateNext()
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(second).To(gomega.Equal((first + 1) % 8))
		})

		ginkgo.It("reports exhaustion once every offset is taken", func() {
			for i := 0; i < 8; i++ {
				_, ok, err := a.AllocateNext()
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
			}
			_, ok, err := a.AllocateNext()
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Context("when releasing an offset", func() {
		ginkgo.It("makes it available again", func() {
			_, _, _ = a.AllocateNext()
			gomega.Expect(a.Free()).To(gomega.Equal(7))
			a.Release(0)
			gomega.Expect(a.Free()).To(gomega.Equal(8))
		})

		ginkgo.It("is a no-op on an offset that was never allocated", func() {
			a.Release(5)
			gomega.Expect(a.Free()).To(gomega.Equal(8))
		})
	})
})

func TestBitmapAllocator(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Bitmap allocator operations suite")
}
