package conversation

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens counts cl100k_base tokens over the text of the given
// messages. It is an estimate: remote models use their own tokenizers.
func EstimateTokens(messages History) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, errors.Wrap(err, "could not load tokenizer")
	}
	total := 0
	for _, m := range messages {
		ids, _, err := c.Encode(m.Text)
		if err != nil {
			return 0, errors.Wrap(err, "could not encode message")
		}
		total += len(ids)
	}
	return total, nil
}
