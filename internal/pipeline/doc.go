// Package pipeline implements the three queue-triggered workers that turn
// a RawMail into a routed, notified, filed invoice: the Enricher
// (raw-mail -> to-post) resolves the vendor and decides where the invoice
// is headed; the Router (to-post -> notify + outbound mail) enforces the
// loop-prevention and deduplication layers, sends the mail to AP, and
// appends the audit row; the Notifier (notify -> chat) renders the fixed
// chat-card envelope. All three share the same worker-loop shape as
// internal/ingest's NotificationWorker and Poller, generalized from the
// teacher's internal/tracking/consumer.go poll loop.
package pipeline
