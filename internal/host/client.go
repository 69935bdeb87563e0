// Package host is a client for the smart-home host platform's REST API: the
// entity state store, calendar event queries and service calls.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultTimeout = 15 * time.Second
	DefaultDomain  = "better_calendar"
	maxErrorBody   = 512
)

// Config holds host connection settings.
type Config struct {
	BaseURL string
	Token   string
	// Domain is the integration that owns the notification store and the
	// fallback event services.
	Domain string
	// NotificationSensor is the entity id of the notification sensor. When
	// empty the sensor is discovered by name.
	NotificationSensor string
	Timeout            time.Duration
	// Retries bounds retries of idempotent reads.
	Retries uint64
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: host returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the host platform.
type Client struct {
	baseURL string
	token   string
	domain  string
	sensor  string
	retries uint64
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		domain:  cfg.Domain,
		sensor:  cfg.NotificationSensor,
		retries: cfg.Retries,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Domain returns the integration domain used for service calls.
func (c *Client) Domain() string {
	return c.domain
}

// State is one entity in the host state store.
type State struct {
	EntityID    string                     `json:"entity_id"`
	State       string                     `json:"state"`
	Attributes  map[string]json.RawMessage `json:"attributes"`
	LastUpdated string                     `json:"last_updated"`
}

// FriendlyName returns the friendly_name attribute or the entity id.
func (s State) FriendlyName() string {
	var name string
	if raw, ok := s.Attributes["friendly_name"]; ok {
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			return name
		}
	}
	return s.EntityID
}

// States returns every entity.
func (c *Client) States(ctx context.Context) ([]State, error) {
	var states []State
	if err := c.getJSON(ctx, "/api/states", nil, &states); err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	return states, nil
}

// State returns one entity, or nil if it does not exist.
func (c *Client) State(ctx context.Context, entityID string) (*State, error) {
	var st State
	err := c.getJSON(ctx, "/api/states/"+url.PathEscape(entityID), nil, &st)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", entityID, err)
	}
	return &st, nil
}

// CallService invokes domain.service with data. Service calls are not
// retried.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	path := "/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(service)
	if err := c.doJSON(ctx, http.MethodPost, path, nil, data, nil); err != nil {
		return fmt.Errorf("call %s.%s: %w", domain, service, err)
	}
	c.logger.Debug("service called", "domain", domain, "service", service)
	return nil
}

// ServiceDomain lists the services registered under one domain.
type ServiceDomain struct {
	Domain   string                     `json:"domain"`
	Services map[string]json.RawMessage `json:"services"`
}

// Services returns the registered services grouped by domain.
func (c *Client) Services(ctx context.Context) ([]ServiceDomain, error) {
	var domains []ServiceDomain
	if err := c.getJSON(ctx, "/api/services", nil, &domains); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return domains, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.doJSON(ctx, http.MethodGet, path, query, nil, v)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			return err
		}
		c.logger.Debug("retrying host request", "path", path, "error", err)
		return retry.RetryableError(err)
	})
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
