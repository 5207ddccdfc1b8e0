package ollama

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

// Gateway talks to an Ollama server.
type Gateway struct {
	client  *api.Client
	options map[string]interface{}
}

type Option func(*Gateway)

// WithOptions sets the model options (temperature, num_ctx, ...) sent with
// every chat request.
func WithOptions(options map[string]interface{}) Option {
	return func(g *Gateway) {
		g.options = options
	}
}

func New(baseURL string, httpClient *http.Client, options ...Option) (*Gateway, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, errors.Wrap(err, "could not create ollama client from environment")
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ollama base url %q", baseURL)
		}
		client = api.NewClient(u, httpClient)
	}

	ret := &Gateway{client: client}
	for _, o := range options {
		o(ret)
	}
	return ret, nil
}

func (g *Gateway) ListModels(ctx context.Context) ([]gateway.ModelDescriptor, error) {
	resp, err := g.client.List(ctx)
	if err != nil {
		return nil, errdefs.NewGatewayError("list models", err)
	}
	ret := make([]gateway.ModelDescriptor, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		d := gateway.ParseModelName(name)
		d.Size = m.Size
		d.ModifiedAt = m.ModifiedAt
		ret = append(ret, d)
	}
	return ret, nil
}

func (g *Gateway) Chat(ctx context.Context, model string, messages []gateway.Message) (<-chan helpers.Result[gateway.ChatChunk], error) {
	if model == "" {
		return nil, &errdefs.ValidationError{Field: "model", Reason: "no model selected"}
	}

	ollamaMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		}
		for _, img := range m.Images {
			msg.Images = append(msg.Images, api.ImageData(img))
		}
		ollamaMessages = append(ollamaMessages, msg)
	}

	stream := true
	req := &api.ChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options:  g.options,
	}

	c := make(chan helpers.Result[gateway.ChatChunk])
	go func() {
		defer close(c)

		err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			chunk := gateway.ChatChunk{Delta: resp.Message.Content}
			if !helpers.Send(ctx, c, helpers.NewValueResult(chunk)) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("model", model).Msg("ollama chat failed")
			helpers.Send(ctx, c, helpers.NewErrorResult[gateway.ChatChunk](errdefs.NewGatewayError("chat", err)))
		}
	}()

	return c, nil
}

func (g *Gateway) Pull(ctx context.Context, name string) (<-chan helpers.Result[gateway.PullProgress], error) {
	if name == "" {
		return nil, &errdefs.ValidationError{Field: "name", Reason: "model name is empty"}
	}

	stream := true
	req := &api.PullRequest{
		Model:  name,
		Stream: &stream,
	}

	c := make(chan helpers.Result[gateway.PullProgress])
	go func() {
		defer close(c)

		err := g.client.Pull(ctx, req, func(resp api.ProgressResponse) error {
			p := gateway.PullProgress{
				Status:    resp.Status,
				Digest:    resp.Digest,
				Total:     resp.Total,
				Completed: resp.Completed,
			}
			if !helpers.Send(ctx, c, helpers.NewValueResult(p)) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("model", name).Msg("ollama pull failed")
			helpers.Send(ctx, c, helpers.NewErrorResult[gateway.PullProgress](errdefs.NewGatewayError("pull", err)))
		}
	}()

	return c, nil
}

var _ gateway.Gateway = &Gateway{}
