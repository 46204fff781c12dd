package cache_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/bookkeeping/internal/cache"
)

var _ = Describe("Memory", func() {
	var (
		c   *cache.Memory
		ctx context.Context
	)

	BeforeEach(func() {
		c = cache.NewMemory()
		ctx = context.Background()
	})

	It("stores and returns values", func() {
		Expect(c.Set(ctx, "k", []byte("v"), time.Minute)).To(Succeed())
		v, ok, err := c.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(v)).To(Equal("v"))
	})

	It("expires entries", func() {
		Expect(c.Set(ctx, "k", []byte("v"), time.Millisecond)).To(Succeed())
		Eventually(func() bool {
			_, ok, _ := c.Get(ctx, "k")
			return ok
		}).WithTimeout(time.Second).Should(BeFalse())
	})

	It("drops keys by prefix", func() {
		Expect(c.Set(ctx, "settlement:10:a", []byte("1"), 0)).To(Succeed())
		Expect(c.Set(ctx, "settlement:10:b", []byte("2"), 0)).To(Succeed())
		Expect(c.Set(ctx, "settlement:11:a", []byte("3"), 0)).To(Succeed())

		Expect(c.DeletePrefix(ctx, "settlement:10:")).To(Succeed())

		_, ok, _ := c.Get(ctx, "settlement:10:a")
		Expect(ok).To(BeFalse())
		_, ok, _ = c.Get(ctx, "settlement:11:a")
		Expect(ok).To(BeTrue())
	})

	It("round-trips JSON", func() {
		type report struct {
			Total string `json:"total"`
		}
		Expect(cache.SetJSON(ctx, c, "r", report{Total: "1040.00"}, time.Minute)).To(Succeed())

		got, ok, err := cache.GetJSON[report](ctx, c, "r")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Total).To(Equal("1040.00"))
	})
})
