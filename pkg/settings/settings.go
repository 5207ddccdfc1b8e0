package settings

import (
	"fmt"
	"os"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/language"
)

type ApiType string

const (
	ApiTypeOllama ApiType = "ollama"
	ApiTypeOpenAI ApiType = "openai"
)

const DefaultOllamaBaseURL = "http://127.0.0.1:11434"

type GatewaySettings struct {
	Provider ApiType `yaml:"provider" mapstructure:"provider"`
	BaseURL  string  `yaml:"base-url,omitempty" mapstructure:"base-url"`
	APIKey   string  `yaml:"api-key,omitempty" mapstructure:"api-key"`
	// Timeout bounds list and pull requests. Chat streams are bounded by their
	// own cancellation instead.
	TimeoutSeconds int `yaml:"timeout,omitempty" mapstructure:"timeout"`
	// Options are passed as model options to ollama (temperature, num_ctx, ...).
	Options map[string]interface{} `yaml:"options,omitempty" mapstructure:"options"`
}

func (g *GatewaySettings) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type ChatSettings struct {
	DefaultModel      string `yaml:"default-model,omitempty" mapstructure:"default-model"`
	DefaultLanguage   string `yaml:"default-language" mapstructure:"default-language"`
	MaxDirectives     int    `yaml:"max-directives" mapstructure:"max-directives"`
	DirectiveTemplate string `yaml:"directive-template,omitempty" mapstructure:"directive-template"`
	CancelOnSwitch    bool   `yaml:"cancel-on-switch" mapstructure:"cancel-on-switch"`
}

type Settings struct {
	Gateway *GatewaySettings `yaml:"gateway" mapstructure:"gateway"`
	Chat    *ChatSettings    `yaml:"chat" mapstructure:"chat"`
}

func NewSettings() *Settings {
	return &Settings{
		Gateway: &GatewaySettings{
			Provider: ApiTypeOllama,
			BaseURL:  DefaultOllamaBaseURL,
			Options:  map[string]interface{}{},
		},
		Chat: &ChatSettings{
			DefaultLanguage: language.DefaultCode,
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) Validate() error {
	if s.Gateway == nil || s.Chat == nil {
		return &errdefs.ValidationError{Reason: "gateway and chat sections are required"}
	}
	switch s.Gateway.Provider {
	case ApiTypeOllama, ApiTypeOpenAI:
	default:
		return &errdefs.ValidationError{
			Field:  "gateway.provider",
			Reason: fmt.Sprintf("unknown provider %q", s.Gateway.Provider),
		}
	}
	if s.Gateway.TimeoutSeconds < 0 {
		return &errdefs.ValidationError{Field: "gateway.timeout", Reason: "must not be negative"}
	}
	if _, err := language.Lookup(s.Chat.DefaultLanguage); err != nil {
		return errors.Wrap(err, "chat.default-language")
	}
	if s.Chat.MaxDirectives < 0 {
		return &errdefs.ValidationError{Field: "chat.max-directives", Reason: "must not be negative"}
	}
	return nil
}

// FromYAML overlays the YAML document b on the defaults.
func FromYAML(b []byte) (*Settings, error) {
	ret := NewSettings()
	if err := yaml.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrap(err, "could not parse settings")
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func FromFile(path string) (*Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read settings file %s", path)
	}
	return FromYAML(b)
}

// FromViper reads the settings from the keys bound in v (config file,
// GRILLO_ environment and flags), falling back to the defaults.
func FromViper(v *viper.Viper) (*Settings, error) {
	ret := NewSettings()
	if v.IsSet("gateway.provider") {
		ret.Gateway.Provider = ApiType(v.GetString("gateway.provider"))
	}
	if v.IsSet("gateway.base-url") {
		ret.Gateway.BaseURL = v.GetString("gateway.base-url")
	}
	if v.IsSet("gateway.api-key") {
		ret.Gateway.APIKey = v.GetString("gateway.api-key")
	}
	if v.IsSet("gateway.timeout") {
		ret.Gateway.TimeoutSeconds = v.GetInt("gateway.timeout")
	}
	if v.IsSet("gateway.options") {
		ret.Gateway.Options = v.GetStringMap("gateway.options")
	}
	if v.IsSet("chat.default-model") {
		ret.Chat.DefaultModel = v.GetString("chat.default-model")
	}
	if v.IsSet("chat.default-language") {
		ret.Chat.DefaultLanguage = v.GetString("chat.default-language")
	}
	if v.IsSet("chat.max-directives") {
		ret.Chat.MaxDirectives = v.GetInt("chat.max-directives")
	}
	if v.IsSet("chat.directive-template") {
		ret.Chat.DirectiveTemplate = v.GetString("chat.directive-template")
	}
	if v.IsSet("chat.cancel-on-switch") {
		ret.Chat.CancelOnSwitch = v.GetBool("chat.cancel-on-switch")
	}

	// openai servers have no sensible default base url
	if ret.Gateway.Provider == ApiTypeOpenAI && !v.IsSet("gateway.base-url") {
		ret.Gateway.BaseURL = ""
	}

	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
