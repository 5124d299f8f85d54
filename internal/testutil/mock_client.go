package testutil

import (
	"context"
	"errors"

	"github.com/giantswarm/version-matrix/internal/llm"
)

// MockLLMClient is a scripted llm.Client. It never streams, so callers
// exercise their non-streaming fallback.
type MockLLMClient struct {
	// Responses are returned in call order; once exhausted, DefaultResponse is used.
	Responses []string

	DefaultResponse string

	// Err, when set, fails every call.
	Err error

	Requests []llm.ChatRequest
}

// Calls returns the number of ChatCompletion invocations.
func (m *MockLLMClient) Calls() int { return len(m.Requests) }

func (m *MockLLMClient) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	n := len(m.Requests)
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if n < len(m.Responses) {
		return &llm.ChatResponse{Content: m.Responses[n]}, nil
	}
	if m.DefaultResponse != "" {
		return &llm.ChatResponse{Content: m.DefaultResponse}, nil
	}
	return &llm.ChatResponse{Content: "mock response"}, nil
}

func (m *MockLLMClient) ChatCompletionStream(context.Context, llm.ChatRequest) (*llm.StreamReader, error) {
	return nil, errors.New("streaming not supported in mock")
}
