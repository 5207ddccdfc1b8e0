package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-go-golems/grillo/pkg/chat"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/settings"
)

// flag name -> settings key
var settingsFlags = map[string]string{
	"provider":         "gateway.provider",
	"base-url":         "gateway.base-url",
	"api-key":          "gateway.api-key",
	"timeout":          "gateway.timeout",
	"model":            "chat.default-model",
	"language":         "chat.default-language",
	"max-directives":   "chat.max-directives",
	"cancel-on-switch": "chat.cancel-on-switch",
}

func AddSettingsFlags(flags *pflag.FlagSet) {
	flags.String("provider", string(settings.ApiTypeOllama), "Model provider (ollama, openai)")
	flags.String("base-url", "", "Base URL of the model server")
	flags.String("api-key", "", "API key for openai compatible servers")
	flags.Int("timeout", 0, "Timeout in seconds for listing and pulling models (0 = none)")
	flags.String("model", "", "Model to chat with")
	flags.String("language", "", "Response language code")
	flags.Int("max-directives", 0, "Language directives kept per conversation (0 = all)")
	flags.Bool("cancel-on-switch", false, "Cancel the running answer when switching conversations")
}

// BindSettingsFlags binds the settings flags to their nested keys so that the
// config file, GRILLO_ environment variables and flags all reach the same key.
func BindSettingsFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range settingsFlags {
		f := flags.Lookup(name)
		if f == nil {
			return errors.Errorf("unknown flag %s", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "could not bind flag %s", name)
		}
	}
	return nil
}

func loadSettings() (*settings.Settings, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	// an explicitly empty --base-url flag must not erase the provider default
	if s.Gateway.BaseURL == "" && s.Gateway.Provider == settings.ApiTypeOllama {
		s.Gateway.BaseURL = settings.DefaultOllamaBaseURL
	}
	return s, nil
}

func newGateway() (*settings.Settings, gateway.Gateway, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	gw, err := s.NewGateway()
	if err != nil {
		return nil, nil, err
	}
	return s, gw, nil
}

func newManager(options ...chat.Option) (*chat.Manager, *settings.Settings, error) {
	s, gw, err := newGateway()
	if err != nil {
		return nil, nil, err
	}
	m, err := chat.NewManager(gw, s, options...)
	if err != nil {
		return nil, nil, err
	}
	return m, s, nil
}

func withTimeout(ctx context.Context, s *settings.Settings) (context.Context, context.CancelFunc) {
	if s.Gateway.TimeoutSeconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Gateway.Timeout())
}
