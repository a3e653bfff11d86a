package vendormatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
)

// LLMMatcher is the C1 step-3 collaborator: given free-text candidate from
// the PDF and a short-list of active vendor names, pick the best match (or
// report none). Implemented by internal/llmvendor; declared here so this
// package never imports the bedrock client directly.
type LLMMatcher interface {
	MatchVendor(ctx context.Context, candidateText string, shortlist []string) (vendorName string, certainty int, ok bool, err error)
}

// Candidate is the raw text the matching algorithm has to work with: a
// vendor-name guess pulled from the PDF or subject line, the sender's
// email address (for the domain fallback), and free text for the LLM step.
type Candidate struct {
	VendorNameGuess string
	Sender          string
	PDFText         string
}

type Matcher struct {
	store     storage.VendorStore
	llm       LLMMatcher
	cache     *vendorCache
	threshold int
}

func NewMatcher(store storage.VendorStore, llm LLMMatcher, cacheTTL time.Duration, fuzzyThreshold int) *Matcher {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &Matcher{
		store:     store,
		llm:       llm,
		cache:     newVendorCache(cacheTTL),
		threshold: thresholdOrDefault(fuzzyThreshold),
	}
}

// Match runs the precedence chain: exact, fuzzy, LLM-assisted, domain
// fallback, none. The first step to produce a hit wins.
func (m *Matcher) Match(ctx context.Context, c Candidate) (domain.VendorMatch, error) {
	if guess := strings.TrimSpace(c.VendorNameGuess); guess != "" {
		key := Normalize(guess)
		if v, found, err := m.lookup(ctx, key); err != nil {
			return domain.VendorMatch{}, err
		} else if found {
			return domain.VendorMatch{Vendor: v, Confidence: 100, Method: domain.MatchExact, Found: true}, nil
		}
	}

	active, err := m.store.ListActive(ctx)
	if err != nil {
		return domain.VendorMatch{}, fmt.Errorf("vendormatch: list active: %w", err)
	}

	if guess := strings.TrimSpace(c.VendorNameGuess); guess != "" {
		if v, score, ok := bestFuzzyMatch(guess, active, m.threshold); ok {
			return domain.VendorMatch{Vendor: v, Confidence: score, Method: domain.MatchFuzzy, Found: true}, nil
		}
	}

	if m.llm != nil && strings.TrimSpace(c.PDFText) != "" && len(active) > 0 {
		shortlist := make([]string, len(active))
		for i, v := range active {
			shortlist[i] = v.VendorName
		}
		name, certainty, ok, err := m.llm.MatchVendor(ctx, c.PDFText, shortlist)
		if err == nil && ok {
			if v, found := findByName(active, name); found {
				confidence := certainty
				if confidence < m.threshold {
					confidence = m.threshold
				}
				return domain.VendorMatch{Vendor: v, Confidence: confidence, Method: domain.MatchAI, Found: true}, nil
			}
		}
	}

	if domainVendor, ok := domainFallback(c.Sender, active); ok {
		return domain.VendorMatch{Vendor: domainVendor, Confidence: 40, Method: domain.MatchDomain, Found: true}, nil
	}

	return domain.VendorMatch{Method: domain.MatchNone, Found: false}, nil
}

func (m *Matcher) lookup(ctx context.Context, key string) (domain.VendorMaster, bool, error) {
	if v, ok := m.cache.get(key); ok {
		return v, true, nil
	}
	v, found, err := m.store.Lookup(ctx, key)
	if err != nil {
		return domain.VendorMaster{}, false, fmt.Errorf("vendormatch: lookup %s: %w", key, err)
	}
	if found {
		m.cache.set(key, v)
	}
	return v, found, nil
}

// InvalidateCache drops key from the read-through cache; callers invoke
// this after a vendor Update so stale attributes don't outlive the TTL.
func (m *Matcher) InvalidateCache(vendorKey string) {
	m.cache.invalidate(vendorKey)
}

func bestFuzzyMatch(guess string, active []domain.VendorMaster, threshold int) (domain.VendorMaster, int, bool) {
	var best domain.VendorMaster
	bestScore := -1
	for _, v := range active {
		score := fuzzyScore(guess, v.VendorName)
		if score > bestScore {
			bestScore = score
			best = v
		}
	}
	if bestScore >= threshold {
		return best, bestScore, true
	}
	return domain.VendorMaster{}, 0, false
}

func findByName(active []domain.VendorMaster, name string) (domain.VendorMaster, bool) {
	target := strings.ToLower(strings.TrimSpace(name))
	for _, v := range active {
		if strings.ToLower(v.VendorName) == target {
			return v, true
		}
	}
	return domain.VendorMaster{}, false
}

// domainFallback derives a vendor from the sender's email domain: if any
// active vendor's normalized key matches the normalized domain label, it
// wins.
func domainFallback(sender string, active []domain.VendorMaster) (domain.VendorMaster, bool) {
	at := strings.LastIndex(sender, "@")
	if at < 0 || at == len(sender)-1 {
		return domain.VendorMaster{}, false
	}
	domainLabel := sender[at+1:]
	parts := strings.Split(domainLabel, ".")
	if len(parts) == 0 {
		return domain.VendorMaster{}, false
	}
	key := Normalize(parts[0])
	for _, v := range active {
		if v.VendorKey == key {
			return v, true
		}
	}
	return domain.VendorMaster{}, false
}

func thresholdOrDefault(threshold int) int {
	if threshold <= 0 {
		return 85
	}
	return threshold
}
