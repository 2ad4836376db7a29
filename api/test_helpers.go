package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatrelay/common"
	"chatrelay/llm"
	"chatrelay/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// recordingGate is an in-memory ratelimit.Gate that counts calls per key
// and denies once limit is exceeded. A non-nil err is returned from every
// call instead.
type recordingGate struct {
	mu     sync.Mutex
	limit  int
	err    error
	counts map[string]int
}

func newRecordingGate(limit int) *recordingGate {
	return &recordingGate{limit: limit, counts: make(map[string]int)}
}

func (g *recordingGate) Allow(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	g.counts[key]++
	return g.counts[key] <= g.limit, nil
}

func (g *recordingGate) Count(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[key]
}

func testConfig() common.Config {
	config := common.DefaultConfig()
	config.LLMProvider = "stub"
	config.CORSOrigins = "http://localhost:3000"
	config.RequestTimeout = 5 * time.Second
	return config
}

// NewMockController builds a Controller whose configured provider is stub.
func NewMockController(t *testing.T, config common.Config, stub *llm.StubProvider, gate ratelimit.Gate) Controller {
	t.Helper()
	factory := llm.NewFactory(nil)
	factory.Register("stub", llm.StubConstructor(stub))
	ctrl, err := NewController(config, factory, gate)
	require.NoError(t, err)
	return ctrl
}

func newTestRouter(t *testing.T, config common.Config, stub *llm.StubProvider, gate ratelimit.Gate) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	allowedOrigins, err := AllowedOriginsFromConfig(config)
	require.NoError(t, err)
	return DefineRoutes(NewMockController(t, config, stub, gate), allowedOrigins)
}
