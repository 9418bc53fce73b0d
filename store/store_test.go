package store_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cxlnet/store"
)

var _ = Describe("Store", func() {
	var s *store.Store[string]

	BeforeEach(func() {
		// 2 sets, 2 ways, 64B lines.
		s = store.New[string](64, 2, 2)
	})

	It("reports a miss on an empty store", func() {
		_, ok := s.Lookup(0x1000)
		Expect(ok).To(BeFalse())
	})

	It("installs and looks up a line", func() {
		_, full := s.Victim(0x1000)
		Expect(full).To(BeFalse())

		s.Install(0x1000, "payload-a")

		v, ok := s.Lookup(0x1000)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("payload-a"))
	})

	It("reports the LRU victim once a set is full", func() {
		// 2 sets means addresses 0x0000, 0x0080 and 0x0100 (tag-distinct,
		// same set since blockAddr/lineSize mod numSets repeats every
		// numSets*lineSize) all collide into set 0.
		s.Install(0x0000, "a")
		s.Install(0x0080, "b") // second way of the same set (0 mod 2 == 0)

		_, full := s.Victim(0x0100)
		Expect(full).To(BeTrue())
	})

	It("never silently evicts on Install", func() {
		Expect(func() {
			s.Install(0x0000, "a")
			s.Install(0x0080, "b")
			s.Install(0x0100, "c") // set is full, no Remove first
		}).To(Panic())
	})

	It("allows install after remove frees the slot", func() {
		s.Install(0x0000, "a")
		s.Install(0x0080, "b")

		victimAddr, full := s.Victim(0x0100)
		Expect(full).To(BeTrue())

		_, removed := s.Remove(victimAddr)
		Expect(removed).To(BeTrue())

		s.Install(0x0100, "c")
		v, ok := s.Lookup(0x0100)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("c"))
	})

	It("tracks occupancy per set", func() {
		s.Install(0x0000, "a")
		used, capacity := s.Occupancy(0x0000)
		Expect(used).To(Equal(1))
		Expect(capacity).To(Equal(2))
	})

	It("enumerates resident entries", func() {
		s.Install(0x0000, "a")
		s.Install(0x0080, "b")

		entries := s.Entries()
		Expect(entries).To(HaveLen(2))
	})
})
