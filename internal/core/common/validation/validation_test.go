package validation_test

import (
	"time"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/bookkeeping/internal"
	"github.com/frahmantamala/bookkeeping/internal/core/common/validation"
)

type sampleDTO struct {
	Name   string          `json:"name" validate:"required"`
	Method string          `json:"payment_method" validate:"required,oneof=CASH BANK_TRANSFER"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Code   string          `json:"code" validate:"omitempty,tracking_code"`
}

var _ = Describe("ValidationBuilder", func() {
	It("collects one error per failing field", func() {
		v := validation.NewValidator()
		v.Field("amount", decimal.NewFromInt(-1)).Required().Positive()
		v.Field("vat_rate", decimal.NewFromInt(150)).Percentage()
		v.Field("description", "ok").Required()

		err := v.Validate()
		Expect(err).NotTo(BeNil())
		details := err.Details.(errors.ValidationErrors)
		Expect(details.Errors).To(HaveLen(2))
		Expect(details.Errors[0].Field).To(Equal("amount"))
		Expect(details.Errors[1].Field).To(Equal("vat_rate"))
	})

	It("applies conditional rules only when asked", func() {
		var rate *decimal.Decimal
		v := validation.NewValidator()
		v.Field("wht_rate", rate).When(false, func(f *validation.FieldValidator) { f.Required() })
		Expect(v.Validate()).To(BeNil())

		v = validation.NewValidator()
		v.Field("wht_rate", rate).When(true, func(f *validation.FieldValidator) { f.Required() })
		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.Error()).To(Equal("wht_rate is required"))
	})

	It("rejects future dates", func() {
		v := validation.NewValidator()
		v.Field("bill_date", time.Now().Add(48*time.Hour)).NotFuture()
		Expect(v.Validate()).NotTo(BeNil())
	})
})

var _ = Describe("Struct", func() {
	It("reports json field names", func() {
		err := validation.Struct(sampleDTO{Method: "CHEQUE", Amount: decimal.Zero, Code: "rb-1"})
		Expect(err).NotTo(BeNil())

		fields := []string{}
		for _, e := range err.Details.(errors.ValidationErrors).Errors {
			fields = append(fields, e.Field)
		}
		Expect(fields).To(ConsistOf("name", "payment_method", "amount", "code"))
	})

	It("passes a valid DTO", func() {
		err := validation.Struct(sampleDTO{Name: "a", Method: "CASH", Amount: decimal.NewFromInt(1), Code: "RB-ABC123"})
		Expect(err).To(BeNil())
	})
})
