package openai

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

// ErrPullUnsupported is returned by Pull: OpenAI-compatible servers have no
// model download endpoint.
var ErrPullUnsupported = errors.New("model pull is not supported by openai-compatible servers")

// Gateway talks to an OpenAI-compatible chat completions endpoint. Images are
// not forwarded.
type Gateway struct {
	client *go_openai.Client
}

func New(baseURL string, apiKey string, httpClient *http.Client) *Gateway {
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return &Gateway{client: go_openai.NewClientWithConfig(config)}
}

func (g *Gateway) ListModels(ctx context.Context) ([]gateway.ModelDescriptor, error) {
	resp, err := g.client.ListModels(ctx)
	if err != nil {
		return nil, errdefs.NewGatewayError("list models", err)
	}
	ret := make([]gateway.ModelDescriptor, 0, len(resp.Models))
	for _, m := range resp.Models {
		ret = append(ret, gateway.ParseModelName(m.ID))
	}
	return ret, nil
}

func (g *Gateway) Chat(ctx context.Context, model string, messages []gateway.Message) (<-chan helpers.Result[gateway.ChatChunk], error) {
	if model == "" {
		return nil, &errdefs.ValidationError{Field: "model", Reason: "no model selected"}
	}

	msgs := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := go_openai.ChatMessageRoleUser
		if m.Role == gateway.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	req := go_openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   true,
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errdefs.NewGatewayError("chat", err)
	}

	c := make(chan helpers.Result[gateway.ChatChunk])
	go func() {
		defer close(c)
		defer func() {
			if err := stream.Close(); err != nil {
				log.Debug().Err(err).Msg("failed to close openai stream")
			}
		}()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				helpers.Send(ctx, c, helpers.NewErrorResult[gateway.ChatChunk](errdefs.NewGatewayError("chat", err)))
				return
			}
			if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
				continue
			}
			chunk := gateway.ChatChunk{Delta: response.Choices[0].Delta.Content}
			if !helpers.Send(ctx, c, helpers.NewValueResult(chunk)) {
				return
			}
		}
	}()

	return c, nil
}

func (g *Gateway) Pull(ctx context.Context, name string) (<-chan helpers.Result[gateway.PullProgress], error) {
	return nil, errdefs.NewGatewayError("pull", ErrPullUnsupported)
}

var _ gateway.Gateway = &Gateway{}
