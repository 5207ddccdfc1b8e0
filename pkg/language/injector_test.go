package language

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/session"
)

func TestSupportedSet(t *testing.T) {
	langs := Supported()
	require.Len(t, langs, 13)
	require.Equal(t, "ar", langs[0].Code)

	l, err := Lookup("de")
	require.NoError(t, err)
	require.Equal(t, "Deutsch", l.Name)

	_, err = Lookup("xx")
	require.ErrorIs(t, err, errdefs.ErrUnsupportedLanguage)
}

func TestChangeLanguagePrependsDirectiveNamingNewLanguage(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(store)
	require.NoError(t, err)
	require.Equal(t, "fr", inj.Current().Code)

	id := store.CreateConversation()
	require.NoError(t, store.AppendMessage(id, conversation.NewUserMessage("hello")))

	got, err := inj.ChangeLanguage("es")
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Equal(t, "es", inj.Current().Code)

	c, err := store.Get(id)
	require.NoError(t, err)
	require.Len(t, c.Messages, 2)
	require.Equal(t, conversation.SenderContext, c.Messages[0].Sender)
	require.Contains(t, c.Messages[0].Text, "Español")
	require.NotContains(t, c.Messages[0].Text, "Français")
	require.Equal(t, "es", c.Messages[0].Language)
	require.Equal(t, "hello", c.Messages[1].Text)
}

func TestUnsupportedLanguageLeavesStateUnchanged(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(store)
	require.NoError(t, err)
	id := store.CreateConversation()

	_, err = inj.ChangeLanguage("xx")
	require.ErrorIs(t, err, errdefs.ErrUnsupportedLanguage)
	require.Equal(t, "fr", inj.Current().Code)

	c, err := store.Get(id)
	require.NoError(t, err)
	require.Empty(t, c.Messages)
}

type failingStore struct {
	*session.Store
}

func (f failingStore) Mutate(id string, mutations ...conversation.Mutation) (*conversation.Conversation, error) {
	return nil, errors.New("store unavailable")
}

func TestFailedDirectiveKeepsLanguage(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(failingStore{Store: store})
	require.NoError(t, err)

	_, err = inj.ChangeLanguage("de")
	require.Error(t, err)
	require.Equal(t, "fr", inj.Current().Code)

	c, ok := store.Active()
	require.True(t, ok)
	require.Empty(t, c.Messages)
}

func TestChangeLanguageCreatesConversationWhenNoneActive(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(store)
	require.NoError(t, err)

	id, err := inj.ChangeLanguage("ja")
	require.NoError(t, err)
	require.Equal(t, id, store.ActiveID())

	c, err := store.Get(id)
	require.NoError(t, err)
	require.Len(t, c.Messages, 1)
	require.Contains(t, c.Messages[0].Text, "日本語")
}

func TestDirectivesAccumulate(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(store)
	require.NoError(t, err)

	for _, code := range []string{"de", "it", "pt"} {
		_, err := inj.ChangeLanguage(code)
		require.NoError(t, err)
	}

	c, ok := store.Active()
	require.True(t, ok)
	directives := c.Messages.Directives()
	require.Len(t, directives, 3)
	require.Equal(t, "pt", directives[0].Language)
	require.Equal(t, "de", directives[2].Language)
	require.Empty(t, c.Messages.Transcript())
}

func TestMaxDirectivesPrunesOlderOnes(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(store, WithMaxDirectives(1))
	require.NoError(t, err)

	id := store.CreateConversation()
	require.NoError(t, store.AppendMessage(id, conversation.NewUserMessage("q")))
	for _, code := range []string{"de", "it", "pt"} {
		_, err := inj.ChangeLanguage(code)
		require.NoError(t, err)
	}

	c, err := store.Get(id)
	require.NoError(t, err)
	require.Len(t, c.Messages, 2)
	require.Equal(t, "pt", c.Messages[0].Language)
	require.Equal(t, "q", c.Messages[1].Text)
}

func TestCustomTemplateWithSprig(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(store,
		WithDefaultLanguage("en_US"),
		WithDirectiveTemplate(`Answer in {{ .Name | upper }} ({{ .Code }}).`),
	)
	require.NoError(t, err)
	require.Equal(t, "en_US", inj.Current().Code)

	l, err := Lookup("ko")
	require.NoError(t, err)
	text, err := inj.Directive(l)
	require.NoError(t, err)
	require.Equal(t, "Answer in 한국어 (ko).", text)

	_, err = NewInjector(store, WithDirectiveTemplate("{{ .Name"))
	require.Error(t, err)
	_, err = NewInjector(store, WithDefaultLanguage("tlh"))
	require.ErrorIs(t, err, errdefs.ErrUnsupportedLanguage)
	_, err = NewInjector(store, WithMaxDirectives(-1))
	require.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestAddContext(t *testing.T) {
	store := session.NewStore()
	inj, err := NewInjector(store)
	require.NoError(t, err)

	err = inj.AddContext("the user is a Go developer")
	require.ErrorIs(t, err, errdefs.ErrNotFound)

	id := store.CreateConversation()
	require.NoError(t, store.AppendMessage(id, conversation.NewUserMessage("q")))
	require.NoError(t, inj.AddContext("the user is a Go developer"))
	require.ErrorIs(t, inj.AddContext("  "), errdefs.ErrValidation)

	c, err := store.Get(id)
	require.NoError(t, err)
	require.Len(t, c.Messages, 2)
	require.Equal(t, conversation.SenderContext, c.Messages[1].Sender)
	require.False(t, c.Messages[1].IsDirective())
}
