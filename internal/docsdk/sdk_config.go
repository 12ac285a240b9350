package docsdk

import (
	"errors"
	"net/url"
	"time"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 2
	defaultBatchLimit = 5
)

// Config is the configuration for a Client.
type Config struct {
	BaseURL    string        // BaseURL is required
	Token      string        // Token is sent as a bearer token when set
	Timeout    time.Duration // per request, defaults to 30s
	RetryCount int           // transport-level retries for reads, defaults to 2
	BatchLimit int           // concurrent requests in batch calls, defaults to 5
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Join(ErrInvalidServerURL, err)
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	if out.RetryCount < 0 {
		out.RetryCount = 0
	} else if out.RetryCount == 0 {
		out.RetryCount = defaultRetryCount
	}
	if out.BatchLimit <= 0 {
		out.BatchLimit = defaultBatchLimit
	}
	return out
}
