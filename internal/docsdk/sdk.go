package docsdk

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/docsync/internal/version"
)

const (
	HeaderDocSyncVersion = "X-DocSync-Version"
)

var DocSyncUserAgent = fmt.Sprintf("DocSync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// Client is the document service client.
type Client struct {
	client     *req.Client
	baseURL    string
	batchLimit int
}

// New creates a new Client
func New(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := cfg.withDefaults()

	client := req.C().
		SetBaseURL(strings.TrimRight(c.BaseURL, "/")).
		SetTimeout(c.Timeout).
		SetUserAgent(DocSyncUserAgent).
		SetCommonHeader(HeaderDocSyncVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(c.RetryCount).
		SetCommonRetryBackoffInterval(250*time.Millisecond, 2*time.Second).
		AddCommonRetryCondition(func(resp *req.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode == 429 || resp.StatusCode >= 500
		}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if c.Token != "" {
		client.SetCommonBearerAuthToken(c.Token)
	}

	return &Client{
		client:     client,
		baseURL:    c.BaseURL,
		batchLimit: c.BatchLimit,
	}, nil
}

// BaseURL returns the service url the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}
