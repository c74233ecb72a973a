package httpapi

import (
	"time"

	"github.com/go-chi/cors"
)

const defaultMaxBodyBytes = 1 << 20

// maxBodyBytes caps /v1/evaluate request bodies.
var maxBodyBytes int64 = defaultMaxBodyBytes

// SetMaxBodyBytes sets the maximum request body size. n <= 0 restores 1 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// evaluateTimeout bounds admission of one /v1/evaluate request. Zero means
// no bound beyond the request context.
var evaluateTimeout time.Duration

// SetEvaluateTimeout sets the evaluate timeout (<= 0 disables).
func SetEvaluateTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	evaluateTimeout = d
}

// corsOpts is nil while CORS is disabled.
var corsOpts *cors.Options

// SetCORSOptions enables CORS for the given origins, methods and headers, or
// disables it when enabled is false. It applies to muxes built afterwards.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	if !enabled {
		corsOpts = nil
		return
	}
	corsOpts = &cors.Options{
		AllowedOrigins: append([]string(nil), origins...),
		AllowedMethods: append([]string(nil), methods...),
		AllowedHeaders: append([]string(nil), headers...),
		MaxAge:         300,
	}
}
