package conversation

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter estimates how many model tokens a text costs.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with the cl100k_base encoding. Local models use
// other vocabularies, so counts are an estimate of the same order.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter() (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter assumes four characters per token.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
