package openai

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/embedding"
)

type mockFastHTTPClient struct {
	mock.Mock
}

func (m *mockFastHTTPClient) DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	args := m.Called(req, resp, timeout)
	if body, ok := args.Get(1).([]byte); ok {
		resp.SetBody(body)
	}
	if status, ok := args.Get(2).(int); ok {
		resp.SetStatusCode(status)
	}
	return args.Error(0)
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

func TestGenerate_Success(t *testing.T) {
	client := new(mockFastHTTPClient)
	body := []byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[3,4]}],"model":"text-embedding-3-small"}`)
	client.On("DoTimeout", mock.MatchedBy(func(req *fasthttp.Request) bool {
		var payload map[string]any
		_ = json.Unmarshal(req.Body(), &payload)
		return req.URI().String() == "https://example.test/v1/embeddings" &&
			string(req.Header.Peek("Authorization")) == "Bearer sk-test" &&
			payload["input"] == "graph neural networks" &&
			payload["model"] == "text-embedding-3-small"
	}), mock.Anything, 5*time.Second).Return(nil, body, fasthttp.StatusOK)

	svc := NewOpenAIEmbeddingService(client, newLogger(), Config{
		APIKey:  "sk-test",
		BaseURL: "https://example.test/v1/",
		Timeout: 5 * time.Second,
	})

	got, err := svc.Generate(context.Background(), "graph neural networks", "text-embedding-3-small")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.Value[0], 1e-6)
	assert.InDelta(t, 0.8, got.Value[1], 1e-6)
	client.AssertExpectations(t)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		body    []byte
		status  int
		cfg     Config
		wantErr error
	}{
		{
			name:    "non ok status",
			body:    []byte(`{"error":{"message":"rate limited"}}`),
			status:  fasthttp.StatusTooManyRequests,
			cfg:     Config{APIKey: "k"},
			wantErr: embedding.ErrProviderNonOKResponse,
		},
		{
			name:    "empty data",
			body:    []byte(`{"data":[]}`),
			status:  fasthttp.StatusOK,
			cfg:     Config{APIKey: "k"},
			wantErr: embedding.ErrEmptyEmbedding,
		},
		{
			name:    "unexpected dimension",
			body:    []byte(`{"data":[{"embedding":[1,2,3]}]}`),
			status:  fasthttp.StatusOK,
			cfg:     Config{APIKey: "k", Dimension: 2},
			wantErr: embedding.ErrDimensionMismatch,
		},
		{
			name:   "transport failure",
			err:    errors.New("dial tcp: connection refused"),
			status: 0,
			cfg:    Config{APIKey: "k"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockFastHTTPClient)
			var body any
			if tt.body != nil {
				body = tt.body
			}
			var status any
			if tt.status != 0 {
				status = tt.status
			}
			client.On("DoTimeout", mock.Anything, mock.Anything, mock.Anything).Return(tt.err, body, status)

			svc := NewOpenAIEmbeddingService(client, newLogger(), tt.cfg)
			_, err := svc.Generate(context.Background(), "q", "m")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestGenerate_RequiresAPIKey(t *testing.T) {
	svc := NewOpenAIEmbeddingService(new(mockFastHTTPClient), newLogger(), Config{})
	_, err := svc.Generate(context.Background(), "q", "m")
	assert.ErrorContains(t, err, "API key is required")
}
