// File: internal/config/credentials.go
package config

import (
	"fmt"
	"os"
)

// ConfigurationError reports a missing or invalid configuration value. It is
// deliberately a distinct type from any portal-interaction failure: the
// operator fixes it by editing config or the environment, not by retrying
// the login.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Key, e.Reason)
}

// Credentials is the username/password pair handed to the credential
// injector. The password must never be logged verbatim.
type Credentials struct {
	Username string
	Password string
}

// CompanyConfig is one company's profile: credentials (inline or indirected
// through environment variables) and the declaration payload fields the
// downstream submission flow consumes.
type CompanyConfig struct {
	Username    string            `mapstructure:"username" yaml:"username"`
	UsernameEnv string            `mapstructure:"username_env" yaml:"username_env"`
	Password    string            `mapstructure:"password" yaml:"password"`
	PasswordEnv string            `mapstructure:"password_env" yaml:"password_env"`
	Declaration map[string]string `mapstructure:"declaration" yaml:"declaration"`
}

// Credentials resolves the credential pair for the named company. Missing
// values produce a *ConfigurationError naming the offending key so the
// operator knows exactly what to set.
func (c *Config) Credentials(company string) (Credentials, error) {
	profile, ok := c.Companies[company]
	if !ok {
		return Credentials{}, &ConfigurationError{
			Key:    "companies." + company,
			Reason: "is not configured",
		}
	}

	username, err := resolveValue(profile.Username, profile.UsernameEnv, "companies."+company+".username")
	if err != nil {
		return Credentials{}, err
	}
	password, err := resolveValue(profile.Password, profile.PasswordEnv, "companies."+company+".password")
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{Username: username, Password: password}, nil
}

// DeclarationFields returns the declaration payload for the named company.
func (c *Config) DeclarationFields(company string) (map[string]string, error) {
	profile, ok := c.Companies[company]
	if !ok {
		return nil, &ConfigurationError{
			Key:    "companies." + company,
			Reason: "is not configured",
		}
	}
	return profile.Declaration, nil
}

// resolveValue prefers the inline value, falls back to the named environment
// variable, and errors when both are absent.
func resolveValue(inline, envName, key string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if envName != "" {
		if v := os.Getenv(envName); v != "" {
			return v, nil
		}
		return "", &ConfigurationError{
			Key:    key,
			Reason: fmt.Sprintf("environment variable %s is empty", envName),
		}
	}
	return "", &ConfigurationError{Key: key, Reason: "is required (set it inline or via *_env)"}
}
