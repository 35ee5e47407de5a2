package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter estimates the token size of an outbound prompt.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with the cl100k_base encoding. The count is an
// estimate for non-OpenAI providers.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	tiktokenOnce    sync.Once
	tiktokenCounter *TiktokenCounter
	tiktokenErr     error
)

// DefaultTokenCounter returns the shared cl100k_base counter.
func DefaultTokenCounter() (*TiktokenCounter, error) {
	tiktokenOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			tiktokenErr = err
			return
		}
		tiktokenCounter = &TiktokenCounter{encoding: enc}
	})
	return tiktokenCounter, tiktokenErr
}

// CountTokens implements TokenCounter.
func (c *TiktokenCounter) CountTokens(text string) int {
	if c == nil || text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoding.Encode(text, nil, nil))
}
