// Package notifier turns failed and dropped job runs into operator alerts.
//
// The service listens on the event bus, suppresses repeats of the same
// alert inside a dedup window, and hands the rest to a Sender through a
// small worker pool. Sends are rate limited and retried with jittered
// exponential backoff.
//
// # Transport
//
// Delivery is delegated to a Sender. WebhookSender posts each alert as JSON
// to a configured URL; tests plug in their own.
//
// # History
//
// The service keeps a short in-memory history of delivered alerts for the
// status endpoint.
package notifier
