// Package ratelimit enforces per-client request quotas expressed as
// "N/period" rules. All configured rules must admit a request for it to
// pass. State is process-wide and safe for concurrent use.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule is one parsed quota, e.g. 20 requests per minute.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

// ParseRule parses a quota string of the form "N/period", where period is
// second, minute, hour, or day (singular or plural).
func ParseRule(s string) (Rule, error) {
	limitStr, periodStr, ok := strings.Cut(s, "/")
	if !ok {
		return Rule{}, fmt.Errorf("parse rate rule %q: expected N/period", s)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
	if err != nil || limit <= 0 {
		return Rule{}, fmt.Errorf("parse rate rule %q: invalid count", s)
	}

	var window time.Duration
	switch strings.TrimSuffix(strings.TrimSpace(periodStr), "s") {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return Rule{}, fmt.Errorf("parse rate rule %q: unknown period", s)
	}

	return Rule{Limit: limit, Window: window}, nil
}

// ParseRules parses a list of rule strings, failing on the first bad one.
func ParseRules(rules []string) ([]Rule, error) {
	parsed := make([]Rule, 0, len(rules))
	for _, s := range rules {
		rule, err := ParseRule(s)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, rule)
	}
	return parsed, nil
}

// Limiter tracks one token bucket per client key per rule. Stale clients
// are evicted as a side effect of new activity.
type Limiter struct {
	rules []Rule

	mu      sync.Mutex
	clients map[string]*client

	maxWindow time.Duration
	now       func() time.Time
}

type client struct {
	buckets  []*rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter for the given rules. With no rules every request is
// admitted.
func New(rules []Rule) *Limiter {
	var maxWindow time.Duration
	for _, r := range rules {
		if r.Window > maxWindow {
			maxWindow = r.Window
		}
	}
	return &Limiter{
		rules:     rules,
		clients:   make(map[string]*client),
		maxWindow: maxWindow,
		now:       time.Now,
	}
}

// Allow reports whether a request from the given client key is admitted by
// every rule. Buckets are consumed rule by rule, so a denied request may
// still have spent tokens on rules checked before the failing one.
func (l *Limiter) Allow(key string) bool {
	if len(l.rules) == 0 {
		return true
	}
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		buckets := make([]*rate.Limiter, len(l.rules))
		for i, r := range l.rules {
			buckets[i] = rate.NewLimiter(rate.Every(r.Window/time.Duration(r.Limit)), r.Limit)
		}
		c = &client{buckets: buckets}
		l.clients[key] = c
	}
	c.lastSeen = l.now()
	l.evictStaleLocked()
	l.mu.Unlock()

	for _, bucket := range c.buckets {
		if !bucket.Allow() {
			return false
		}
	}
	return true
}

// evictStaleLocked drops clients idle for two full windows. Caller holds mu.
func (l *Limiter) evictStaleLocked() {
	if len(l.clients) < 2 {
		return
	}
	cutoff := l.now().Add(-2 * l.maxWindow)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}
