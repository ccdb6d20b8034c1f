// SPDX-License-Identifier: Apache-2.0

// Package redact scrubs credentials and personal data out of incident
// text before it reaches a model or is persisted as an experience.
// Incident reports routinely paste in connection strings, tokens, and
// log lines; the scrubber masks those while leaving operational detail
// (hostnames, IPs, service names) intact.
package redact

import (
	"context"
	"regexp"
	"sort"
	"sync"
)

// Redaction records one masked span in the scrubbed text.
type Redaction struct {
	Kind        string `json:"kind"`
	Replacement string `json:"replacement"`
	Position    int    `json:"position"`
}

// Result is the outcome of scrubbing one piece of text.
type Result struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// rule is a compiled detection pattern. When group is nonzero only that
// capture group is replaced, which lets a rule keep surrounding context
// (e.g. the key name in "password=...") while masking the value.
type rule struct {
	kind    string
	pattern *regexp.Regexp
	mask    string
	group   int
}

// Default rules, ordered most specific first. Deliberately conservative:
// IP addresses and hostnames are operational data in this domain and are
// never masked.
var defaultRules = []struct {
	kind    string
	pattern string
	mask    string
	group   int
}{
	{"private_key", `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`, "[PRIVATE_KEY]", 0},
	{"aws_access_key", `\bAKIA[0-9A-Z]{16}\b`, "[AWS_ACCESS_KEY]", 0},
	{"bearer_token", `(?i)\bbearer\s+([A-Za-z0-9._~+/-]{8,}=*)`, "[TOKEN]", 1},
	{"url_credentials", `://[^/\s:@]+:[^/\s@]+@`, "://[CREDENTIALS]@", 0},
	{"secret_assignment", `(?i)\b(?:password|passwd|pwd|secret|api[_-]?key|access[_-]?token)["']?\s*[=:]\s*["']?([^\s"',;]+)`, "[SECRET]", 1},
	{"credit_card", `\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13})\b`, "[CARD]", 0},
	{"ssn", `\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`, "[SSN]", 0},
	{"email", `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[EMAIL]", 0},
}

// Scrubber applies an ordered set of redaction rules.
type Scrubber struct {
	mu    sync.RWMutex
	rules []rule
	seen  map[string]int
}

// Option configures a Scrubber.
type Option func(*Scrubber)

// WithRule adds a custom detection pattern. Invalid patterns are ignored.
func WithRule(kind, pattern, mask string) Option {
	return func(s *Scrubber) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		s.rules = append(s.rules, rule{kind: kind, pattern: re, mask: mask})
	}
}

// WithoutKinds disables the named default rules.
func WithoutKinds(kinds ...string) Option {
	return func(s *Scrubber) {
		drop := make(map[string]bool, len(kinds))
		for _, k := range kinds {
			drop[k] = true
		}
		kept := s.rules[:0]
		for _, r := range s.rules {
			if !drop[r.kind] {
				kept = append(kept, r)
			}
		}
		s.rules = kept
	}
}

// New builds a scrubber with the default rule set.
func New(opts ...Option) *Scrubber {
	s := &Scrubber{seen: make(map[string]int)}
	for _, d := range defaultRules {
		s.rules = append(s.rules, rule{
			kind:    d.kind,
			pattern: regexp.MustCompile(d.pattern),
			mask:    d.mask,
			group:   d.group,
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply scrubs text and reports every masked span. The original text is
// never included in the redaction records.
func (s *Scrubber) Apply(ctx context.Context, text string) Result {
	result := Result{Content: text}
	if text == "" {
		return result
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		select {
		case <-ctx.Done():
			return result
		default:
		}

		matches := r.pattern.FindAllStringSubmatchIndex(result.Content, -1)
		if len(matches) == 0 {
			continue
		}

		// Replace in reverse so earlier positions stay valid.
		for i := len(matches) - 1; i >= 0; i-- {
			start, end := matches[i][2*r.group], matches[i][2*r.group+1]
			if start < 0 {
				continue
			}
			result.Content = result.Content[:start] + r.mask + result.Content[end:]
			result.Redactions = append(result.Redactions, Redaction{
				Kind:        r.kind,
				Replacement: r.mask,
				Position:    start,
			})
			result.Modified = true
			s.seen[r.kind]++
		}
	}

	sort.Slice(result.Redactions, func(i, j int) bool {
		return result.Redactions[i].Position < result.Redactions[j].Position
	})
	return result
}

// Stats returns a per-kind count of everything masked so far.
func (s *Scrubber) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.seen))
	for k, v := range s.seen {
		out[k] = v
	}
	return out
}
