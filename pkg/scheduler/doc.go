// Package scheduler provides the cooperative task scheduler driving all
// periodic work in the client.
//
// All tasks of all gateways run sequentially on one goroutine, woken by a
// single time.Timer. The scheduler keeps a min-heap of armed tasks and
// only ever has one outstanding timer wake: re-arming it only when the
// earliest wake time changes. This keeps the design portable to hosts
// with a single timer resource and removes any need for locking between
// task callbacks.
//
// Task callbacks must not block; long operations are split across
// re-arms. A callback that panics is recovered and logged, and the
// scheduler keeps running; such a task stops only because it never
// re-armed itself.
//
// Run-stamps (NextStamp) let a logical device detect stale callbacks
// after a restart: the device records the stamp current at start and
// compares it inside each callback, dropping invocations that belong to
// a previous run.
package scheduler
