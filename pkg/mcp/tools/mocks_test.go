package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sqlmend/pkg/services"
)

// mockResolutionService implements services.ResolutionService for testing.
type mockResolutionService struct {
	result       *services.Resolution
	err          error
	calls        int
	lastQuestion string
}

func (m *mockResolutionService) Resolve(ctx context.Context, question string) (*services.Resolution, error) {
	m.calls++
	m.lastQuestion = question
	return m.result, m.err
}

var _ services.ResolutionService = (*mockResolutionService)(nil)

// mockGenerationService implements services.GenerationService for testing.
type mockGenerationService struct {
	chatResult *services.ChatResult
	chatErr    error
	fixResult  *services.FixResult
	fixErr     error

	lastChatReq services.ChatRequest
	lastFixReq  services.FixRequest
	chatCalls   int
	fixCalls    int
}

func (m *mockGenerationService) Chat(ctx context.Context, req services.ChatRequest) (*services.ChatResult, error) {
	m.chatCalls++
	m.lastChatReq = req
	return m.chatResult, m.chatErr
}

func (m *mockGenerationService) Fix(ctx context.Context, req services.FixRequest) (*services.FixResult, error) {
	m.fixCalls++
	m.lastFixReq = req
	return m.fixResult, m.fixErr
}

var _ services.GenerationService = (*mockGenerationService)(nil)

// toolCallResponse is the decoded JSON-RPC envelope of a tools/call answer.
type toolCallResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool sends a raw JSON-RPC frame to the server and decodes the answer.
func callTool(t *testing.T, s *server.MCPServer, frame string) toolCallResponse {
	t.Helper()
	raw := s.HandleMessage(context.Background(), []byte(frame))

	resultBytes, err := json.Marshal(raw)
	require.NoError(t, err)

	var resp toolCallResponse
	require.NoError(t, json.Unmarshal(resultBytes, &resp))
	return resp
}

// contentText returns the first text content block of a tool answer.
func contentText(t *testing.T, resp toolCallResponse) string {
	t.Helper()
	require.NotEmpty(t, resp.Result.Content, "expected content in tool response")
	return resp.Result.Content[0].Text
}

// listedTools returns the tool names reported by tools/list.
func listedTools(t *testing.T, s *server.MCPServer) map[string]bool {
	t.Helper()
	raw := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))

	resultBytes, err := json.Marshal(raw)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	names := make(map[string]bool)
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
	}
	return names
}
