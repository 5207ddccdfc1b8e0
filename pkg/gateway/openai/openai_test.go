package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

func newTestGateway(t *testing.T, handler http.Handler) *Gateway {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1", "test-key", srv.Client())
}

func TestListModels(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4","object":"model"},{"id":"llama3:8b","object":"model"}]}`)
	}))

	models, err := g.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []gateway.ModelDescriptor{
		{Name: "gpt-4", Tag: "latest"},
		{Name: "llama3", Tag: "8b"},
	}, models)
}

func TestChatStreamsDeltas(t *testing.T) {
	var got go_openai.ChatCompletionRequest
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Bon", "jour"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	c, err := g.Chat(context.Background(), "gpt-4", []gateway.Message{
		{Role: gateway.RoleUser, Content: "respond in Français"},
		{Role: gateway.RoleAssistant, Content: "ok"},
		{Role: gateway.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)

	chunks, err := helpers.Collect(c)
	require.NoError(t, err)
	require.Equal(t, []gateway.ChatChunk{{Delta: "Bon"}, {Delta: "jour"}}, chunks)

	require.True(t, got.Stream)
	require.Len(t, got.Messages, 3)
	require.Equal(t, go_openai.ChatMessageRoleAssistant, got.Messages[1].Role)
}

func TestChatHTTPErrorIsGatewayError(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))

	_, err := g.Chat(context.Background(), "gpt-4", []gateway.Message{{Role: gateway.RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, errdefs.ErrGateway)
}

func TestPullIsUnsupported(t *testing.T) {
	g := New("", "key", nil)
	_, err := g.Pull(context.Background(), "llama2")
	require.ErrorIs(t, err, errdefs.ErrGateway)
	require.ErrorIs(t, err, ErrPullUnsupported)
}
