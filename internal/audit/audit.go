// Package audit provides a structured audit logger for CLI command invocations.
// It logs command name, resolved configuration, and sanitised environment state
// so operators can trace what happened without exposing secret values.
//
// Secrets are logged as presence/absence only: never their values.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// secretEnvKeys lists environment variable names whose values must never be
// logged. Only presence ("set") or absence ("unset") is recorded.
var secretEnvKeys = map[string]bool{
	"OPENAI_API_KEY":        true,
	"AZURE_OPENAI_API_KEY":  true,
	"GOOGLE_API_KEY":        true,
	"BEDROCK_API_KEY":       true,
	"EMBEDDING_API_KEY":     true,
	"QDRANT_API_KEY":        true,
	"LANGFUSE_PUBLIC_KEY":   true,
	"LANGFUSE_SECRET_KEY":   true,
	"AWS_SECRET_ACCESS_KEY": true,
	"AWS_SESSION_TOKEN":     true,
}

// dsnEnvKeys hold connection strings. They are logged with the password
// redacted.
var dsnEnvKeys = map[string]bool{
	"DATABASE_URL": true,
}

// LogCommandStart emits a structured audit log entry when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}

	for _, key := range auditKeys {
		attrs = append(attrs, slog.String(key, SanitiseKey(key, os.Getenv(key))))
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []string{
	"MODEL_PROVIDER",
	"OLLAMA_HOST",
	"OLLAMA_MODEL",
	"OPENAI_API_KEY",
	"OPENAI_MODEL",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_ENDPOINT",
	"AZURE_OPENAI_DEPLOYMENT",
	"GOOGLE_API_KEY",
	"GEMINI_MODEL",
	"AWS_REGION",
	"BEDROCK_MODEL_ID",
	"BEDROCK_API_KEY",
	"EMBEDDING_PROVIDER",
	"EMBEDDING_MODEL",
	"EMBEDDING_API_KEY",
	"STORE_BACKEND",
	"DATABASE_URL",
	"SITREP_TABLE",
	"SITREP_EMBEDDING_COLUMN",
	"SITREP_DISTANCE",
	"QDRANT_HOST",
	"QDRANT_PORT",
	"QDRANT_API_KEY",
	"SITREP_HISTORY_DB",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"LANGFUSE_PUBLIC_KEY",
	"LANGFUSE_SECRET_KEY",
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	if dsnEnvKeys[key] && value != "" {
		return redactDSN(value)
	}
	return valOrUnset(value)
}

// redactDSN masks the password of a URL-style connection string. Strings
// that do not parse as URLs are reduced to presence only.
func redactDSN(v string) string {
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" {
		return presence(v)
	}
	return u.Redacted()
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
