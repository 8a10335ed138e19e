package queueid

import (
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Per-chassis queue id allocation", func() {
	var a *Allocator

	ginkgo.BeforeEach(func() {
		a = NewAllocator()
	})

	ginkgo.It("allocates ids independently per chassis", func() {
		id1 := a.AllocateNext("chassis-a")
		id2 := a.AllocateNext("chassis-b")
		gomega.Expect(id1).To(gomega.Equal(id2))
	})

	ginkgo.It("never reallocates a reserved id", func() {
		first := a.AllocateNext("chassis-a")
		a.Reserve("chassis-a", first+1)
		second := a.AllocateNext("chassis-a")
		gomega.Expect(second).NotTo(gomega.Equal(first + 1))
	})

	ginkgo.It("makes a released id available again", func() {
		id := a.AllocateNext("chassis-a")
		a.Release("chassis-a", id)
		gomega.Expect(a.AllocateNext("chassis-a")).To(gomega.Equal(id))
	})

	ginkgo.It("reports per-chassis allocation counts via Stats", func() {
		a.AllocateNext("chassis-a")
		a.AllocateNext("chassis-a")
		a.AllocateNext("chassis-b")
		stats := a.Stats()
		gomega.Expect(stats["chassis-a"]).To(gomega.Equal(2))
		gomega.Expect(stats["chassis-b"]).To(gomega.Equal(1))
	})
})

func TestQueueIDAllocator(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Queue id allocator Operations Suite")
}
