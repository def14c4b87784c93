package llm

import (
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// fallbackEncoding is what llms.CountTokens uses for model ids tiktoken does
// not know, which includes every OpenRouter id.
const fallbackEncoding = "cl100k_base"

func init() {
	// Serve BPE ranks from the embedded copy instead of downloading them on
	// first use.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}
