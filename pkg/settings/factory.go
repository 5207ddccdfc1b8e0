package settings

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/gateway/ollama"
	"github.com/go-go-golems/grillo/pkg/gateway/openai"
)

// NewGateway builds the gateway adapter for the configured provider.
func (s *Settings) NewGateway() (gateway.Gateway, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	settings_ := s.Clone()

	httpClient := &http.Client{}
	switch settings_.Gateway.Provider {
	case ApiTypeOllama:
		// chat streams run as long as the answer, so the timeout only applies
		// through the context of list and pull calls
		return ollama.New(settings_.Gateway.BaseURL, httpClient, ollama.WithOptions(settings_.Gateway.Options))
	case ApiTypeOpenAI:
		return openai.New(settings_.Gateway.BaseURL, settings_.Gateway.APIKey, httpClient), nil
	}

	return nil, errors.Errorf("unsupported provider %s", settings_.Gateway.Provider)
}
