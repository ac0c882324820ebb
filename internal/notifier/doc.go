// Package notifier delivers alert messages asynchronously.
//
// Notify only enqueues. A fixed pool of workers drains the queue through a
// token bucket limiter and retries failed sends with jittered exponential
// backoff. Lifecycle changes are published on the event bus as notifier.*
// events, and a short history of recent sends is kept for the API.
//
// Delivery is best-effort: a full queue rejects with ErrQueueFull, and a
// message that exhausts its retries is dropped after a notifier.failed event.
package notifier
