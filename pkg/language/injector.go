// Package language owns the response-language policy and injects it into
// conversations as context directives.
package language

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/events"
)

const DefaultDirectiveTemplate = "It is imperative that you respond in {{.Name}}, " +
	"It's imperative that you answer in Markdown format, with a compulsory main title " +
	"and a hierarchy of subtitles if necessary. " +
	"Don't hesitate to use all the MarkDown methods for formatting text and computer code."

// ConversationStore is the part of the session store the injector writes to.
type ConversationStore interface {
	EnsureActive() string
	ActiveID() string
	Mutate(id string, mutations ...conversation.Mutation) (*conversation.Conversation, error)
	AppendMessage(id string, message conversation.Message) error
}

type Injector struct {
	store ConversationStore
	sink  events.EventSink

	template      *template.Template
	maxDirectives int

	mu      sync.Mutex
	current Language
}

type Option func(*Injector) error

func WithEventSink(sink events.EventSink) Option {
	return func(i *Injector) error {
		i.sink = sink
		return nil
	}
}

func WithDefaultLanguage(code string) Option {
	return func(i *Injector) error {
		l, err := Lookup(code)
		if err != nil {
			return err
		}
		i.current = l
		return nil
	}
}

// WithDirectiveTemplate sets the text/template rendered with the target
// Language. Sprig functions are available.
func WithDirectiveTemplate(text string) Option {
	return func(i *Injector) error {
		t, err := parseTemplate(text)
		if err != nil {
			return err
		}
		i.template = t
		return nil
	}
}

// WithMaxDirectives bounds how many language directives a conversation keeps.
// 0 keeps all of them.
func WithMaxDirectives(n int) Option {
	return func(i *Injector) error {
		if n < 0 {
			return &errdefs.ValidationError{Field: "max-directives", Reason: "must not be negative"}
		}
		i.maxDirectives = n
		return nil
	}
}

func parseTemplate(text string) (*template.Template, error) {
	t, err := template.New("directive").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse directive template")
	}
	return t, nil
}

func NewInjector(store ConversationStore, options ...Option) (*Injector, error) {
	ret := &Injector{
		store: store,
		sink:  events.NewNullSink(),
	}
	ret.current, _ = Lookup(DefaultCode)
	t, err := parseTemplate(DefaultDirectiveTemplate)
	if err != nil {
		return nil, err
	}
	ret.template = t

	for _, o := range options {
		if err := o(ret); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func (i *Injector) Current() Language {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

// Directive renders the directive text for l.
func (i *Injector) Directive(l Language) (string, error) {
	var buf bytes.Buffer
	if err := i.template.Execute(&buf, l); err != nil {
		return "", errors.Wrapf(err, "could not render directive for %s", l.Code)
	}
	return buf.String(), nil
}

// ChangeLanguage switches the response language and prepends a directive
// naming the new language to the active conversation, creating one if none
// is active. Unsupported codes leave everything unchanged. It returns the id
// of the conversation that received the directive.
func (i *Injector) ChangeLanguage(code string) (string, error) {
	l, err := Lookup(code)
	if err != nil {
		return "", err
	}
	text, err := i.Directive(l)
	if err != nil {
		return "", err
	}

	// held across the mutation so directives land in the order of the changes
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.current

	id := i.store.EnsureActive()
	mutations := []conversation.Mutation{conversation.MutatePrependDirective(l.Code, text)}
	if i.maxDirectives > 0 {
		mutations = append(mutations, conversation.MutatePruneDirectives(i.maxDirectives))
	}
	if _, err := i.store.Mutate(id, mutations...); err != nil {
		return "", errors.Wrap(err, "could not add language directive")
	}
	i.current = l

	log.Debug().Str("conversation_id", id).Str("from", from.Code).Str("to", l.Code).Msg("language changed")
	md := events.NewMetadata(id)
	events.Publish(i.sink, events.NewLanguageChangedEvent(md, from.Code, l.Code))
	events.Publish(i.sink, events.NewDirectiveAddedEvent(md, l.Code, text))
	return id, nil
}

// AddContext appends a free-form context message to the active conversation.
func (i *Injector) AddContext(text string) error {
	if strings.TrimSpace(text) == "" {
		return &errdefs.ValidationError{Field: "context", Reason: "context text is empty"}
	}
	id := i.store.ActiveID()
	if id == "" {
		return &errdefs.NotFoundError{Resource: "active conversation"}
	}
	return i.store.AppendMessage(id, conversation.NewContextMessage(text))
}
