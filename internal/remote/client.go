// Package remote holds the HTTP clients a unit uses to call other units and
// the external collaborators (event service, permission gateway).
package remote

import (
	"attendees/internal/models"
	"attendees/internal/providers"
	"attendees/internal/structures"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const defaultTimeout = 10 * time.Second

// maxErrorBody bounds how much of a failed reply is kept in the error text.
const maxErrorBody = 4096

type ClientInterface interface {
	PostJSON(ctx context.Context, base models.Principal, path string, body any, out any) error
	GetJSON(ctx context.Context, base models.Principal, path string, query url.Values, out any) error
	Self() models.Principal
}

// Client issues JSON calls on behalf of this unit. Every request carries the
// unit principal in the caller header.
type Client struct {
	http    *http.Client
	self    models.Principal
	logger  providers.Logger
	metrics providers.MetricsProviderInterface
}

func NewClient(conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) ClientInterface {
	timeout := conf.Remote.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		self:    models.Principal(conf.Node.Advertise),
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Client) Self() models.Principal { return c.self }

func (c *Client) PostJSON(ctx context.Context, base models.Principal, path string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return models.WrapApiError(models.KindSerializeError, models.TagSerializeFailed, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(base, path, nil), bytes.NewReader(reqBody))
	if err != nil {
		return c.failed(path, base, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, base, out)
}

func (c *Client) GetJSON(ctx context.Context, base models.Principal, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(base, path, query), nil)
	if err != nil {
		return c.failed(path, base, err)
	}
	return c.do(req, path, base, out)
}

func (c *Client) do(req *http.Request, path string, base models.Principal, out any) error {
	req.Header.Set(providers.CallerHeader, string(c.self))
	resp, err := c.http.Do(req)
	if err != nil {
		return c.failed(path, base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr models.ApiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Kind != "" {
			c.logger.Debugf(providers.TypeRemote, "%s%s answered %d: %s", base, path, resp.StatusCode, apiErr.Error())
			return &apiErr
		}
		return c.failed(path, base, fmt.Errorf("http %s%s: %d %s", base, path, resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return models.WrapApiError(models.KindDeserializeError, models.TagDeserializeFailed, path, err, string(base))
	}
	return nil
}

// failed covers transport errors and untyped rejections. The outcome of the
// call is unknown to the caller.
func (c *Client) failed(path string, base models.Principal, err error) error {
	c.metrics.IncRemoteCallFailures(path)
	c.logger.Warnf(providers.TypeRemote, "call %s%s failed: %s", base, path, err)
	return models.WrapApiError(models.KindRemoteCallFailed, models.TagRemoteCallFailed, path, err, string(base))
}

func endpoint(base models.Principal, path string, query url.Values) string {
	u := strings.TrimRight(string(base), "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
