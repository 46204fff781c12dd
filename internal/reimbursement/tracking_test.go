package reimbursement_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/bookkeeping/internal/reimbursement"
)

var _ = Describe("Tracking codes", func() {
	It("always match RB- plus six uppercase alphanumerics", func() {
		seen := map[string]bool{}
		for i := 0; i < 500; i++ {
			code, err := reimbursement.NewTrackingCode()
			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(MatchRegexp(`^RB-[A-Z0-9]{6}$`))
			seen[code] = true
		}
		// 36^6 codes; 500 draws colliding would point at a broken source
		Expect(len(seen)).To(BeNumerically(">", 495))
	})

	DescribeTable("format check",
		func(code string, valid bool) {
			Expect(reimbursement.ValidTrackingCode(code)).To(Equal(valid))
		},
		Entry("valid", "RB-A1B2C3", true),
		Entry("lowercase", "rb-a1b2c3", false),
		Entry("short", "RB-A1B2C", false),
		Entry("wrong prefix", "RX-A1B2C3", false),
		Entry("symbols", "RB-A1B2C!", false),
	)

	DescribeTable("transitions",
		func(from, to string, allowed bool) {
			Expect(reimbursement.CanTransition(from, to)).To(Equal(allowed))
		},
		Entry(nil, "PENDING", "FLAGGED", true),
		Entry(nil, "PENDING", "APPROVED", true),
		Entry(nil, "PENDING", "REJECTED", true),
		Entry(nil, "PENDING", "PAID", false),
		Entry(nil, "FLAGGED", "APPROVED", true),
		Entry(nil, "FLAGGED", "REJECTED", true),
		Entry(nil, "FLAGGED", "PAID", false),
		Entry(nil, "APPROVED", "PAID", true),
		Entry(nil, "APPROVED", "APPROVED", false),
		Entry(nil, "APPROVED", "REJECTED", false),
		Entry(nil, "REJECTED", "APPROVED", false),
		Entry(nil, "PAID", "REJECTED", false),
	)
})
