package session

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures an assistant answer for the token_count field.
type TokenCounter interface {
	Count(text string) int
}

// WordCounter counts whitespace-separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, such as "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownTokenizer, encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// TokenizerWords selects WordCounter.
const TokenizerWords = "words"

// NewTokenCounter returns the counter named by tokenizer. Empty or "words"
// selects WordCounter; anything else is loaded as a tiktoken encoding.
func NewTokenCounter(tokenizer string) (TokenCounter, error) {
	if tokenizer == "" || tokenizer == TokenizerWords {
		return WordCounter{}, nil
	}
	return NewTiktokenCounter(tokenizer)
}
