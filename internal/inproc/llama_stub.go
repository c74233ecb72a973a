//go:build !llama

package inproc

// Default builds stay CGO-free; the real model lives in llama.go.

var llamaBuilt = false

func loadModel(string, int) (model, error) {
	return nil, ErrDependencyUnavailable
}
