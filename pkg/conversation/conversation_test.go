package conversation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/grillo/pkg/errdefs"
)

func texts(h History) []string {
	ret := []string{}
	for _, m := range h {
		ret = append(ret, m.Text)
	}
	return ret
}

func TestAppendAndPrependKeepOrder(t *testing.T) {
	c := New()
	require.True(t, c.IsEmpty())

	require.NoError(t, c.ApplyAll(
		MutateAppendMessage(NewUserMessage("hello")),
		MutateAppendMessage(NewAssistantMessage("llama2:latest", "hi")),
		MutatePrependDirective("es", "respond in Español"),
	))

	require.Equal(t, []string{"respond in Español", "hello", "hi"}, texts(c.Messages))
	require.Equal(t, uint64(3), c.Version)
	require.Equal(t, []string{"hello", "hi"}, texts(c.Messages.Transcript()))
	require.Equal(t, []string{"respond in Español", "hello", "hi"}, texts(c.Messages.Submittable()))
}

func TestSubmittableExcludesSystemErrors(t *testing.T) {
	c := New()
	require.NoError(t, c.ApplyAll(
		MutateAppendMessage(NewUserMessage("q")),
		MutateAppendMessage(NewSystemErrorMessage("connection refused")),
	))
	require.Equal(t, []string{"q"}, texts(c.Messages.Submittable()))
	require.Equal(t, []string{"q", "connection refused"}, texts(c.Messages.Transcript()))
}

func TestTransientLivesBesideMessages(t *testing.T) {
	c := New()
	require.NoError(t, c.Apply(MutateSetTransient("m", "Hel")))
	id := c.Transient.ID
	require.NoError(t, c.Apply(MutateSetTransient("m", "Hello")))
	require.Equal(t, id, c.Transient.ID)
	require.Equal(t, "Hello", c.Transient.Text)
	require.Equal(t, SenderTransient, c.Transient.Sender)
	require.True(t, c.IsEmpty())

	require.NoError(t, c.Apply(MutateFinalize(NewAssistantMessage("m", "Hello"))))
	require.Nil(t, c.Transient)
	require.Equal(t, []string{"Hello"}, texts(c.Messages))
}

func TestFinalizeRejectsUserMessages(t *testing.T) {
	c := New()
	require.NoError(t, c.Apply(MutateSetTransient("m", "x")))
	err := c.Apply(MutateFinalize(NewUserMessage("nope")))
	require.Error(t, err)
}

func TestCommitValidation(t *testing.T) {
	cases := []struct {
		name    string
		message Message
	}{
		{"transient", NewMessage(SenderTransient, "x")},
		{"unknown sender", NewMessage(Sender("robot"), "x")},
		{"images on assistant", NewMessage(SenderAssistant, "x", WithImages([]byte{1}))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			err := c.Apply(MutateAppendMessage(tc.message))
			require.ErrorIs(t, err, errdefs.ErrValidation)
		})
	}
}

func TestParseSender(t *testing.T) {
	s, err := ParseSender("context")
	require.NoError(t, err)
	require.Equal(t, SenderContext, s)

	_, err = ParseSender("bot")
	require.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestPruneDirectivesKeepsMostRecent(t *testing.T) {
	c := New()
	require.NoError(t, c.ApplyAll(
		MutateAppendMessage(NewUserMessage("q")),
		MutatePrependDirective("fr", "fr"),
		MutatePrependDirective("es", "es"),
		MutatePrependDirective("de", "de"),
		MutatePrependMessage(NewContextMessage("free form")),
		MutatePruneDirectives(2),
	))
	require.Equal(t, []string{"free form", "de", "es", "q"}, texts(c.Messages))

	require.NoError(t, c.Apply(MutatePruneDirectives(0)))
	require.Len(t, c.Messages, 4)
}

func TestAdded(t *testing.T) {
	before := New()
	require.NoError(t, before.Apply(MutateAppendMessage(NewUserMessage("a"))))

	after := *before
	after.Messages = append(History{}, before.Messages...)
	require.NoError(t, after.Apply(MutateAppendMessage(NewUserMessage("b"))))

	require.Equal(t, []string{"b"}, texts(after.Added(before)))
	require.Equal(t, []string{"a", "b"}, texts(after.Added(nil)))
}

func TestTitle(t *testing.T) {
	c := New()
	require.Equal(t, "", c.Title())
	require.NoError(t, c.ApplyAll(
		MutateAppendMessage(NewUserMessage("# not this one")),
		MutateAppendMessage(NewAssistantMessage("m", "intro\n\n## Sub\n\n# Paris Guide\n\ntext")),
		MutateAppendMessage(NewAssistantMessage("m", "# Later")),
	))
	require.Equal(t, "Paris Guide", c.Title())

	require.Equal(t, "", ExtractTitle("no heading here"))
	require.Equal(t, "Setext", ExtractTitle("Setext\n======\n"))
}

func TestEstimateTokens(t *testing.T) {
	n, err := EstimateTokens(History{NewUserMessage("hello world")})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = EstimateTokens(History{})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
