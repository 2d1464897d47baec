package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter converts text to a token count for budget accounting. Counts must
// be deterministic for a given text and encoding; the same counter is used
// for budgeting and for the token usage shown to clients.
type Counter interface {
	Count(text string) (int, error)
}

type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func New(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Count(text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}
