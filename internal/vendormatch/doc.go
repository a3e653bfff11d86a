// Package vendormatch implements the C1 vendor-resolution algorithm:
// exact match on normalized name, then fuzzy, then LLM-assisted, then a
// sender-domain fallback, in that precedence order.
package vendormatch
