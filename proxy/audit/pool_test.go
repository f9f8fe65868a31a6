package audit

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

// newTestPool creates an audit pool with a nop logger.
// Callers should Close() to drain enqueued records before asserting counters.
func newTestPool() *Pool {
	pool, err := NewPool(&Config{Logger: zap.NewNop()})
	Expect(err).NotTo(HaveOccurred())
	return pool
}

var _ = Describe("Audit Pool", func() {
	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			pool := newTestPool()
			ok := pool.Enqueue(Record{
				RequestID: "req-1",
				Method:    "POST",
				Path:      "/v1/messages",
				Status:    200,
			})
			Expect(ok).To(BeTrue())
			pool.Close()
		})
	})

	Describe("Stats", func() {
		It("counts relayed records after draining", func() {
			pool := newTestPool()
			for range 5 {
				pool.Enqueue(Record{RequestID: "req", Status: 200})
			}
			pool.Close()

			stats := pool.Stats()
			Expect(stats.Relayed).To(Equal(uint64(5)))
			Expect(stats.Dropped).To(BeZero())
		})

		It("counts only records with injected fields as injections", func() {
			pool := newTestPool()
			pool.Enqueue(Record{RequestID: "a", Injected: []string{"temperature", "top_k"}})
			pool.Enqueue(Record{RequestID: "b"})
			pool.Enqueue(Record{RequestID: "c", Injected: []string{"top_p"}})
			pool.Close()

			stats := pool.Stats()
			Expect(stats.Relayed).To(Equal(uint64(3)))
			Expect(stats.Injected).To(Equal(uint64(2)))
		})
	})

	Describe("Close", func() {
		It("drains in-flight records", func() {
			pool := newTestPool()
			for i := range 20 {
				pool.Enqueue(Record{
					RequestID: "req",
					Status:    200,
					Streaming: i%2 == 0,
					Duration:  time.Millisecond,
				})
			}
			pool.Close()

			Expect(pool.Stats().Relayed).To(Equal(uint64(20)))
		})
	})
})
