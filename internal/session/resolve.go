package session

import "github.com/matheus3301/wpparchive/internal/config"

const DefaultSessionName = "main"

// Resolve picks the session name: the flag when given, then the configured
// default (environment over config.toml), then DefaultSessionName. A broken
// config file does not prevent resolving a name.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Resolve(ConfigPath(), EnvPath())
	if err != nil {
		return DefaultSessionName
	}
	return ResolveFrom("", cfg)
}

// ResolveFrom is Resolve against an already loaded config.
func ResolveFrom(flagOverride string, cfg *config.Config) string {
	switch {
	case flagOverride != "":
		return flagOverride
	case cfg != nil && cfg.DefaultSession != "":
		return cfg.DefaultSession
	default:
		return DefaultSessionName
	}
}
