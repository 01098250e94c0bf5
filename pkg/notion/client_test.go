package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) AppendBlocks(ctx context.Context, pageID string, blocks []notionapi.Block) error {
	args := m.Called(ctx, pageID, blocks)
	return args.Error(0)
}

func TestNewClient_DefaultLimiter(t *testing.T) {
	t.Parallel()
	c, ok := NewClient("test-token").(*notionClient)
	require.True(t, ok)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 3.0, float64(c.limiter.Limit()), 0.001)
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		rps       float64
		wantNil   bool
		wantBurst int
	}{
		{name: "faster", rps: 10, wantBurst: 10},
		{name: "fractional", rps: 0.5, wantBurst: 1},
		{name: "disabled", rps: 0, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewClient("test-token", WithRateLimit(tt.rps)).(*notionClient)
			if tt.wantNil {
				assert.Nil(t, c.limiter)
				return
			}
			require.NotNil(t, c.limiter)
			assert.Equal(t, tt.wantBurst, c.limiter.Burst())
		})
	}
}

func TestThrottle_CancelledContext(t *testing.T) {
	t.Parallel()
	c := NewClient("test-token", WithRateLimit(0.001)).(*notionClient)
	require.NoError(t, c.throttle(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.throttle(ctx))

	_, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
}
