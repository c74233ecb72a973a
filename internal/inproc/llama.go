//go:build llama

package inproc

import (
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

type llamaModel struct {
	m *llama.LLama
}

func loadModel(path string, ctxSize int) (model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(path, llama.SetContext(ctxSize))
	if err != nil {
		return nil, err
	}
	return &llamaModel{m: m}, nil
}

func (l *llamaModel) predict(prompt string, opts predictOptions, onToken func(string) bool) (string, error) {
	if l.m == nil {
		return "", errors.New("llama model not initialized")
	}
	l.m.SetTokenCallback(onToken)
	po := []llama.PredictOption{
		llama.SetTokens(max(1, opts.tokens)),
		llama.SetThreads(max(1, opts.threads)),
		llama.SetSeed(opts.seed),
	}
	return l.m.Predict(prompt, po...)
}

func (l *llamaModel) free() {
	if l.m != nil {
		l.m.Free()
		l.m = nil
	}
}
