package config

import (
	"fmt"
	"os"
)

// SecretResolver turns a reference name from the config document into the
// credential value. The document never holds secrets literally.
type SecretResolver interface {
	Resolve(ref string) (string, error)
}

// EnvSecretResolver resolves references as environment variable names.
type EnvSecretResolver struct{}

// Resolve implements SecretResolver.
func (EnvSecretResolver) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("secret reference is empty")
	}
	value := os.Getenv(ref)
	if value == "" {
		return "", fmt.Errorf("secret %q is not set", ref)
	}
	return value, nil
}

// StaticSecretResolver serves secrets from a fixed map. Test use only.
type StaticSecretResolver map[string]string

// Resolve implements SecretResolver.
func (s StaticSecretResolver) Resolve(ref string) (string, error) {
	value, ok := s[ref]
	if !ok || value == "" {
		return "", fmt.Errorf("secret %q is not set", ref)
	}
	return value, nil
}
