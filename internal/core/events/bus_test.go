package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/bookkeeping/internal/core/events"
)

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("runs sync handlers in order and stops at the first veto", func() {
		var calls []string
		bus.Subscribe(events.EventTypeTransactionBeforeCreate, func(context.Context, events.Event) error {
			calls = append(calls, "first")
			return errors.New("missing contact")
		})
		bus.Subscribe(events.EventTypeTransactionBeforeCreate, func(context.Context, events.Event) error {
			calls = append(calls, "second")
			return nil
		})

		err := bus.PublishSync(context.Background(), events.NewBeforeCreateEvent(1, 2, "EXPENSE", nil))
		Expect(err).To(MatchError(ContainSubstring("missing contact")))
		Expect(calls).To(Equal([]string{"first"}))
	})

	It("swallows async handler failures", func() {
		var (
			mu   sync.Mutex
			seen int
		)
		handler := func(context.Context, events.Event) error {
			mu.Lock()
			seen++
			mu.Unlock()
			return errors.New("boom")
		}
		bus.Subscribe(events.EventTypeSettlementSettled, handler)
		bus.Subscribe(events.EventTypeSettlementSettled, handler)

		ev := events.NewDomainEvent(events.EventTypeSettlementSettled, 1, events.Actor(2), "payment", 3, nil)
		Expect(bus.Publish(context.Background(), ev)).To(Succeed())
		bus.Wait()

		mu.Lock()
		defer mu.Unlock()
		Expect(seen).To(Equal(2))
	})

	It("keeps async handlers alive after the caller's context ends", func() {
		var got error
		bus.Subscribe(events.EventTypeTransactionCreated, func(ctx context.Context, _ events.Event) error {
			got = ctx.Err()
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(bus.Publish(ctx, events.NewDomainEvent(events.EventTypeTransactionCreated, 1, nil, "transaction", 1, nil))).To(Succeed())
		bus.Wait()
		Expect(got).NotTo(HaveOccurred())
	})

	It("is a no-op without subscribers", func() {
		Expect(bus.PublishSync(context.Background(), events.NewBeforeCreateEvent(1, 1, "INCOME", nil))).To(Succeed())
	})
})
