package engine_test

import (
	"errors"
	"math"

	"github.com/mudler/hybridrecall/rag/types"

	. "github.com/mudler/hybridrecall/rag/engine"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Options", func() {
	It("should default to limit 10, factor 10 and priority 1", func() {
		opts := DefaultOptions()
		Expect(opts).To(Equal(Options{Limit: 10, OverrequestFactor: 10, VectorPriority: 1, TextPriority: 1}))
		Expect(opts.Validate()).To(Succeed())
		Expect(opts.NumCandidates()).To(Equal(100))
	})

	It("should accept zero priorities", func() {
		Expect(Options{Limit: 1, OverrequestFactor: 1}.Validate()).To(Succeed())
	})

	It("should reject NaN and infinite values", func() {
		Expect(errors.Is(Options{Limit: 1, OverrequestFactor: math.NaN()}.Validate(), types.ErrInvalidConfiguration)).To(BeTrue())
		Expect(errors.Is(Options{Limit: 1, OverrequestFactor: math.Inf(1)}.Validate(), types.ErrInvalidConfiguration)).To(BeTrue())
		Expect(errors.Is(Options{Limit: 1, OverrequestFactor: 1, TextPriority: math.NaN()}.Validate(), types.ErrInvalidConfiguration)).To(BeTrue())
	})

	It("should round the candidate pool up and never below the limit", func() {
		Expect(Options{Limit: 3, OverrequestFactor: 1.5}.NumCandidates()).To(Equal(5))
		Expect(Options{Limit: 10, OverrequestFactor: 0.5}.NumCandidates()).To(Equal(10))
	})

	It("should saturate the candidate pool instead of overflowing", func() {
		opts := Options{Limit: 10, OverrequestFactor: math.MaxFloat64}
		Expect(opts.Validate()).To(Succeed())
		Expect(opts.NumCandidates()).To(Equal(math.MaxInt))
		Expect(Options{Limit: math.MaxInt, OverrequestFactor: 2}.NumCandidates()).To(Equal(math.MaxInt))
	})
})
