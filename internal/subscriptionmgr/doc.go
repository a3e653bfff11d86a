// Package subscriptionmgr implements the Subscription Manager: a scheduled
// task that keeps exactly one push subscription active against the ingest
// mailbox, creating one when none exists and renewing it before it expires.
// Shaped like a campaign scheduler's ticker-driven Run loop, but serialized
// across instances with a distributed lock (internal/pkg/distlock) instead
// of a per-row database UPDATE, since there is only ever one logical
// resource to coordinate rather than many independent campaigns.
package subscriptionmgr
