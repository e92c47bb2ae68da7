package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/modestbitboard/breadbox/ratelimit"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		in      string
		want    ratelimit.Rule
		wantErr bool
	}{
		{in: "3/second", want: ratelimit.Rule{Limit: 3, Window: time.Second}},
		{in: "20/minute", want: ratelimit.Rule{Limit: 20, Window: time.Minute}},
		{in: "100/hour", want: ratelimit.Rule{Limit: 100, Window: time.Hour}},
		{in: "1000/day", want: ratelimit.Rule{Limit: 1000, Window: 24 * time.Hour}},
		{in: "5/seconds", want: ratelimit.Rule{Limit: 5, Window: time.Second}},
		{in: "3 / minute", want: ratelimit.Rule{Limit: 3, Window: time.Minute}},
		{in: "minute", wantErr: true},
		{in: "0/minute", wantErr: true},
		{in: "-1/minute", wantErr: true},
		{in: "x/minute", wantErr: true},
		{in: "3/fortnight", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ratelimit.ParseRule(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRules_FirstBadRuleFails(t *testing.T) {
	_, err := ratelimit.ParseRules([]string{"3/second", "bogus"})
	assert.Error(t, err)

	rules, err := ratelimit.ParseRules([]string{"3/second", "20/minute"})
	assert.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestLimiter_NoRulesAdmitsEverything(t *testing.T) {
	limiter := ratelimit.New(nil)
	for range 1000 {
		assert.True(t, limiter.Allow("10.0.0.1"))
	}
}

func TestLimiter_ExhaustsBurst(t *testing.T) {
	limiter := ratelimit.New([]ratelimit.Rule{{Limit: 3, Window: time.Hour}})

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestLimiter_RulesANDCompose(t *testing.T) {
	// The tighter rule denies even while the looser one still has tokens.
	limiter := ratelimit.New([]ratelimit.Rule{
		{Limit: 100, Window: time.Hour},
		{Limit: 2, Window: time.Hour},
	})

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	limiter := ratelimit.New([]ratelimit.Rule{{Limit: 1, Window: time.Hour}})

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestLimiter_EmptyKeyBucketed(t *testing.T) {
	limiter := ratelimit.New([]ratelimit.Rule{{Limit: 1, Window: time.Hour}})

	assert.True(t, limiter.Allow(""))
	assert.False(t, limiter.Allow(""))
}
