package pipeline

import (
	"context"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/vendormatch"
)

// breakerLLM wraps a vendormatch.LLMMatcher so a misbehaving model endpoint
// trips the same process-wide breaker registry every other external call
// goes through, without internal/llmvendor or internal/vendormatch needing
// to import internal/breaker themselves.
type breakerLLM struct {
	inner    vendormatch.LLMMatcher
	breakers *breaker.Registry
}

// WrapLLMMatcher returns an LLMMatcher that routes every call through the
// registry's "llm" breaker.
func WrapLLMMatcher(inner vendormatch.LLMMatcher, breakers *breaker.Registry) vendormatch.LLMMatcher {
	return breakerLLM{inner: inner, breakers: breakers}
}

func (b breakerLLM) MatchVendor(ctx context.Context, candidateText string, shortlist []string) (string, int, bool, error) {
	var name string
	var certainty int
	var ok bool
	err := b.breakers.Call(ctx, "llm", func(ctx context.Context) error {
		var callErr error
		name, certainty, ok, callErr = b.inner.MatchVendor(ctx, candidateText, shortlist)
		return callErr
	})
	if err != nil {
		return "", 0, false, err
	}
	return name, certainty, ok, nil
}
