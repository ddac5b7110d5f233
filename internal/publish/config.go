package publish

import (
	"errors"
	"fmt"
	"strings"
)

// Config locates the bucket a run folder is mirrored into.
type Config struct {
	// Enabled turns mirroring on after a successful run.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Endpoint is host:port without a scheme, e.g. "localhost:9000".
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	Region    string `json:"region" yaml:"region"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
	Bucket    string `json:"bucket" yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// DefaultConfig is a disabled local MinIO target.
func DefaultConfig() Config {
	return Config{
		Endpoint: "localhost:9000",
		Region:   "us-east-1",
		Bucket:   "unaflow-runs",
	}
}

// Validate checks c. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// RedactedSecret masks all but the last 4 characters of the secret key.
func (c Config) RedactedSecret() string {
	if c.SecretKey == "" {
		return ""
	}
	if len(c.SecretKey) < 8 {
		return "(set)"
	}
	return "..." + c.SecretKey[len(c.SecretKey)-4:]
}

// String implements fmt.Stringer without the secret key.
func (c Config) String() string {
	return fmt.Sprintf("publish.Config{Enabled:%t, Endpoint:%s, Bucket:%s, Prefix:%s, SecretKey:%s}",
		c.Enabled, c.Endpoint, c.Bucket, c.Prefix, c.RedactedSecret())
}
