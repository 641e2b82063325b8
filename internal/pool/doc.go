// Package pool provides a bounded worker pool. A Pool owns a fixed set of
// workers and a FIFO queue; submitted tasks start in submission order as
// workers free up, and each task's outcome is delivered through its own
// Future. A failing or panicking task rejects only its own future. Shutdown
// lets in-flight work finish and rejects whatever is still queued.
//
// All worker and queue state is guarded by a single mutex owned by the pool.
package pool
