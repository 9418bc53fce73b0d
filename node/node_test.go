package node_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cxlnet/node"
)

func TestNode(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Node Suite")
}

var _ = Describe("HostCache", func() {
	var h *node.HostCache

	BeforeEach(func() {
		h = node.NewHostCache(0, 64, 4, 2) // 2 sets, 2 ways
	})

	It("allocates a line with room to spare", func() {
		_, needsEviction := h.Allocate(0x1000)
		Expect(needsEviction).To(BeFalse())
		Expect(h.Contains(0x1000)).To(BeTrue())
	})

	It("reports a victim once its set is full", func() {
		h.Allocate(0x0000)
		h.Allocate(0x0080)

		victim, needsEviction := h.Allocate(0x0100)
		Expect(needsEviction).To(BeTrue())
		Expect(victim).To(BeNumerically(">=", 0))

		h.Evict(victim)
		_, needsEviction2 := h.Allocate(0x0100)
		Expect(needsEviction2).To(BeFalse())
		Expect(h.Contains(0x0100)).To(BeTrue())
	})
})

var _ = Describe("DirectoryStore and DirectoryIndex", func() {
	var (
		device  *node.DirectoryStore
		switch0 *node.DirectoryStore
		idx     *node.DirectoryIndex
	)

	BeforeEach(func() {
		device = node.NewDirectoryStore(10, 64, 4, 2)
		switch0 = node.NewDirectoryStore(11, 64, 4, 2)
		idx = node.NewDirectoryIndex(device, map[node.NodeID]*node.DirectoryStore{11: switch0})
	})

	It("finds nothing for a line with no entry", func() {
		_, _, ok := idx.Find(0x1000)
		Expect(ok).To(BeFalse())
	})

	It("finds an entry allocated on the device", func() {
		entry := node.NewExclusiveEntry(0, device.ID)
		device.Allocate(0x1000, entry)

		id, found, ok := idx.Find(0x1000)
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(device.ID))
		Expect(found.State).To(Equal(node.Exclusive))
	})

	It("finds an entry allocated on a switch", func() {
		entry := node.NewSharedEntry(1, switch0.ID)
		switch0.Allocate(0x2000, entry)

		id, _, ok := idx.Find(0x2000)
		Expect(ok).To(BeTrue())
		Expect(id).To(Equal(switch0.ID))
	})

	It("resolves node ids back to their store", func() {
		s, ok := idx.Resolve(device.ID)
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal(device))

		_, ok = idx.Resolve(999)
		Expect(ok).To(BeFalse())
	})

	It("removes sharers", func() {
		entry := node.NewSharedEntry(1, device.ID)
		device.Allocate(0x3000, entry)
		device.RemoveSharer(0x3000, 1)

		got, _ := device.Lookup(0x3000)
		Expect(got.Sharers).To(BeEmpty())
	})
})
