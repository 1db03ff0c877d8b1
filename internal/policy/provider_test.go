package policy

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Swap(t *testing.T) {
	t.Parallel()

	restrictive := newTestEngine(t, protectedRules())
	permissive := newTestEngine(t, nil)

	provider := NewProvider(restrictive)

	decision := provider.Engine().Evaluate(context.Background(), &Input{
		Path:   "/protectedPath",
		Method: http.MethodGet,
	})
	assert.False(t, decision.Allowed)

	previous := provider.Swap(permissive)
	assert.Same(t, restrictive, previous)

	decision = provider.Engine().Evaluate(context.Background(), &Input{
		Path:   "/protectedPath",
		Method: http.MethodGet,
	})
	assert.True(t, decision.Allowed)
}

func TestProvider_ConcurrentSwap(t *testing.T) {
	t.Parallel()

	engines := []Engine{
		newTestEngine(t, protectedRules()),
		newTestEngine(t, nil),
	}

	provider := NewProvider(engines[0])

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if i%2 == 0 {
					provider.Swap(engines[j%2])
					continue
				}
				engine := provider.Engine()
				require.NotNil(t, engine)
				decision := engine.Evaluate(context.Background(), &Input{
					Path:   "/search",
					Method: http.MethodGet,
				})
				require.NotNil(t, decision)
			}
		}(i)
	}
	wg.Wait()
}
