// Package notifier delivers staff notifications (e.g. "new teacher
// registered") asynchronously through a bounded queue, a worker pool, a
// token-bucket rate limit and jittered retries.
//
// Callers never wait for delivery and never see delivery failures; those are
// logged and published on the event bus.
package notifier
