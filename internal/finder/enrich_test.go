package finder

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/sgscope/pkg/usage"
)

type domain struct {
	name   string
	groups []string
}

func listOf(keys ...string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) { return keys, nil }
}

func identity(k string) string { return k }

func TestEnricher_MatchesInListOrder(t *testing.T) {
	details := map[string]domain{
		"logs":    {name: "logs", groups: []string{"sg-1"}},
		"metrics": {name: "metrics", groups: []string{"sg-2"}},
		"search":  {name: "search", groups: []string{"sg-2", "sg-1"}},
	}

	e := Enricher[string, domain]{
		List: listOf("logs", "metrics", "search"),
		Key:  identity,
		Enrich: func(ctx context.Context, k string) (domain, error) {
			time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
			return details[k], nil
		},
		Match: func(d domain) bool {
			for _, g := range d.groups {
				if g == "sg-1" {
					return true
				}
			}
			return false
		},
	}

	m, err := e.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"logs", "search"}, m.IDs)
	assert.Empty(t, m.Skipped)
}

func TestEnricher_EmptyList(t *testing.T) {
	e := Enricher[string, domain]{
		List:   listOf(),
		Key:    identity,
		Enrich: func(ctx context.Context, k string) (domain, error) { t.Fatal("enrich called"); return domain{}, nil },
	}

	m, err := e.Run(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, m.IDs)
	assert.Empty(t, m.IDs)
}

func TestEnricher_ListErrorFailsLookup(t *testing.T) {
	e := Enricher[string, domain]{
		List: func(context.Context) ([]string, error) {
			return nil, usage.Authorization(errors.New("denied"))
		},
		Key: identity,
	}

	_, err := e.Run(context.Background())

	assert.ErrorIs(t, err, usage.ErrAuthorization)
}

func TestEnricher_EmitOverridesMatch(t *testing.T) {
	e := Enricher[string, domain]{
		List:   listOf("svc-a"),
		Key:    identity,
		Enrich: func(ctx context.Context, k string) (domain, error) { return domain{name: k}, nil },
		Match:  func(domain) bool { return true },
		Emit: func(k string, d domain) []string {
			return []string{d.name + " (cluster-1)", d.name + " (cluster-2)"}
		},
	}

	m, err := e.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"svc-a (cluster-1)", "svc-a (cluster-2)"}, m.IDs)
}

// ══════════════════════════════════════════════════════════════════════════════
// Partial failure
// ══════════════════════════════════════════════════════════════════════════════

func TestEnricher_SkipsFailedItem(t *testing.T) {
	e := Enricher[string, domain]{
		List: listOf("a", "b", "c"),
		Key:  identity,
		Enrich: func(ctx context.Context, k string) (domain, error) {
			if k == "b" {
				return domain{}, usage.Transient(errors.New("throttled"))
			}
			return domain{name: k}, nil
		},
		Match: func(domain) bool { return true },
	}

	m, err := e.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, m.IDs)
	require.Len(t, m.Skipped, 1)
	assert.Equal(t, "b", m.Skipped[0].Item)
	assert.Equal(t, usage.KindTransient, m.Skipped[0].Err.Kind)
}

func TestEnricher_AuthorizationAbortsLookup(t *testing.T) {
	e := Enricher[string, domain]{
		List: listOf("a", "b", "c"),
		Key:  identity,
		Enrich: func(ctx context.Context, k string) (domain, error) {
			if k == "b" {
				return domain{}, usage.Authorization(errors.New("not authorized for b"))
			}
			return domain{name: k}, nil
		},
		Match: func(domain) bool { return true },
	}

	m, err := e.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, usage.ErrAuthorization)
	assert.Empty(t, m.IDs)
}

func TestEnricher_AllItemsFailed(t *testing.T) {
	e := Enricher[string, domain]{
		List: listOf("a", "b"),
		Key:  identity,
		Enrich: func(ctx context.Context, k string) (domain, error) {
			return domain{}, usage.Malformed("cluster %s missing", k)
		},
		Match: func(domain) bool { return true },
	}

	_, err := e.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, usage.KindMalformedResponse, usage.KindOf(err))
	assert.Contains(t, err.Error(), "all 2 items failed")
	assert.Contains(t, err.Error(), "cluster a missing")
}

func TestEnricher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := Enricher[string, domain]{
		List:   listOf("a", "b"),
		Key:    identity,
		Enrich: func(ctx context.Context, k string) (domain, error) { return domain{}, ctx.Err() },
		Match:  func(domain) bool { return true },
	}

	_, err := e.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnricher_RespectsLimit(t *testing.T) {
	var inFlight, peak int32
	e := Enricher[string, domain]{
		List: listOf("a", "b", "c", "d", "e", "f", "g", "h"),
		Key:  identity,
		Enrich: func(ctx context.Context, k string) (domain, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return domain{}, nil
		},
		Match: func(domain) bool { return false },
		Limit: 3,
	}

	m, err := e.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, m.IDs)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}
