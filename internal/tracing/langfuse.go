// Package tracing wires Langfuse into the eino callback chain so every
// completion call of a pipeline run is traced.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/sitrep-go/internal/version"
)

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned flush function must be called
// before process exit so buffered traces are sent. If Langfuse is not
// configured, ok is false and tracing is silently disabled.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	cfg, ok := configFromEnv()
	if !ok {
		return nil, nil, false
	}
	handler, flush = langfuse.NewLangfuseHandler(cfg)
	return handler, flush, true
}

// configFromEnv builds the Langfuse config from the environment. Traces are
// named after the binary and tagged with its version.
func configFromEnv() (*langfuse.Config, bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, false
	}
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = "http://localhost:3000"
	}
	return &langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "sitrep",
		Release:   version.Version,
	}, true
}
