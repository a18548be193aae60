package accounting

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

var loaderOnce sync.Once

// useOfflineRanks makes tiktoken read BPE ranks embedded in the binary
// instead of downloading them on first use.
func useOfflineRanks() {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
}

// encoderCache memoizes one encoder per BPE encoding, so it holds at most as
// many entries as tiktoken has encodings no matter which model names clients
// send. Names without an encoding are never stored.
type encoderCache struct {
	m sync.Map
}

func (c *encoderCache) get(model string) *tiktoken.Tiktoken {
	name, ok := encodingName(family(model))
	if !ok {
		return nil
	}

	if v, ok := c.m.Load(name); ok {
		return v.(*tiktoken.Tiktoken)
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil
	}
	actual, _ := c.m.LoadOrStore(name, enc)
	return actual.(*tiktoken.Tiktoken)
}

// encodingName maps a model to its encoding: exact names first, then the
// versioned-name prefixes such as "gpt-4-".
func encodingName(model string) (string, bool) {
	if name, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return name, true
	}
	for prefix, name := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return name, true
		}
	}
	return "", false
}

// family strips a routing prefix such as "openrouter/" from a model name.
func family(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// encode returns the BPE token count, or ok=false if the encoder failed.
func encode(enc *tiktoken.Tiktoken, text string) (n int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n, ok = 0, false
		}
	}()
	return len(enc.Encode(text, nil, nil)), true
}

// estimate is ceil(words * 1.3), kept in integers to avoid float drift.
func estimate(text string) int {
	words := len(strings.Fields(text))
	return (words*13 + 9) / 10
}
