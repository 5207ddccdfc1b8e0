package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

func newTestGateway(t *testing.T, handler http.Handler) *Gateway {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := New(srv.URL, srv.Client())
	require.NoError(t, err)
	return g
}

func writeLines(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, l := range lines {
		_, _ = fmt.Fprintln(w, l)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func TestListModels(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"models":[
			{"name":"llama2:latest","model":"llama2:latest","size":3825819519,"modified_at":"2024-01-10T10:00:00Z"},
			{"name":"mistral:7b","model":"mistral:7b","size":4109865159,"modified_at":"2024-01-11T10:00:00Z"}
		]}`)
	}))

	models, err := g.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "llama2", models[0].Name)
	require.Equal(t, "latest", models[0].Tag)
	require.Equal(t, int64(3825819519), models[0].Size)
	require.Equal(t, "mistral:7b", models[1].FullName())
}

func TestListModelsFailureIsGatewayError(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, `{"error":"boom"}`)
	}))

	_, err := g.ListModels(context.Background())
	require.ErrorIs(t, err, errdefs.ErrGateway)
}

func TestChatStreamsDeltas(t *testing.T) {
	var got api.ChatRequest
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeLines(w,
			`{"model":"llama2","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"model":"llama2","message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"model":"llama2","message":{"role":"assistant","content":""},"done":true}`,
		)
	}))

	c, err := g.Chat(context.Background(), "llama2:latest", []gateway.Message{
		{Role: gateway.RoleUser, Content: "respond in English"},
		{Role: gateway.RoleUser, Content: "hi", Images: [][]byte{[]byte("png")}},
	})
	require.NoError(t, err)

	chunks, err := helpers.Collect(c)
	require.NoError(t, err)
	require.Equal(t, []gateway.ChatChunk{{Delta: "Hel"}, {Delta: "lo"}}, chunks)

	require.Equal(t, "llama2:latest", got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "user", got.Messages[1].Role)
	require.Equal(t, api.ImageData("png"), got.Messages[1].Images[0])
	require.NotNil(t, got.Stream)
	require.True(t, *got.Stream)
}

func TestChatErrorLineEndsStream(t *testing.T) {
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLines(w,
			`{"model":"llama2","message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"error":"model runner crashed"}`,
		)
	}))

	c, err := g.Chat(context.Background(), "llama2", []gateway.Message{{Role: gateway.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	chunks, err := helpers.Collect(c)
	require.ErrorIs(t, err, errdefs.ErrGateway)
	require.Contains(t, err.Error(), "model runner crashed")
	require.Equal(t, []gateway.ChatChunk{{Delta: "Hel"}}, chunks)
}

func TestChatRequiresModel(t *testing.T) {
	g, err := New("http://localhost:11434", nil)
	require.NoError(t, err)
	_, err = g.Chat(context.Background(), "", nil)
	require.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestPullReportsProgress(t *testing.T) {
	var got api.PullRequest
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/pull", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeLines(w,
			`{"status":"pulling manifest"}`,
			`{"status":"pulling 8934d96d3f08","digest":"sha256:8934","total":1000,"completed":250}`,
			`{"status":"pulling 8934d96d3f08","digest":"sha256:8934","total":1000,"completed":1000}`,
			`{"status":"success"}`,
		)
	}))

	c, err := g.Pull(context.Background(), "llama2")
	require.NoError(t, err)
	progress, err := helpers.Collect(c)
	require.NoError(t, err)
	require.Len(t, progress, 4)
	require.False(t, progress[0].HasBytes())
	require.Equal(t, int64(250), progress[1].Completed)
	require.Equal(t, "sha256:8934", progress[1].Digest)
	require.Equal(t, "success", progress[3].Status)
	require.Equal(t, "llama2", got.Model)
}

func TestPullCancelStopsGoroutine(t *testing.T) {
	release := make(chan struct{})
	g := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeLines(w, `{"status":"pulling","digest":"sha256:1","total":10,"completed":1}`)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c, err := g.Pull(ctx, "llama2")
	require.NoError(t, err)

	first := <-c
	require.True(t, first.Ok())
	cancel()

	for range c {
	}
}
