// client/client.go
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/temportalflux/wishlist/internal/api"
	"github.com/temportalflux/wishlist/internal/errors"
	"github.com/temportalflux/wishlist/internal/list"
)

// Client talks to a running wishlist daemon.
type Client struct {
	client *req.Client
}

type apiError struct {
	Type    errors.ErrorType `json:"type"`
	Message string           `json:"message"`
}

func New(baseURL string) *Client {
	client := req.C().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetCommonErrorResult(&apiError{}).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)
	return &Client{client: client}
}

func handleAPIError(resp *req.Response, err error, op string) error {
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("%s: daemon unreachable: %w", op, err)
	}
	if !resp.IsErrorState() {
		if err != nil {
			return fmt.Errorf("%s: decoding response: %w", op, err)
		}
		return nil
	}

	if e, ok := resp.ErrorResult().(*apiError); ok && e.Type != "" {
		return &errors.Error{Type: e.Type, Op: op, Message: e.Message}
	}
	return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
}

func (c *Client) Health(ctx context.Context) error {
	resp, err := c.client.R().SetContext(ctx).Get("/health")
	return handleAPIError(resp, err, "health")
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var result api.StatusResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		Get("/api/status")
	if err := handleAPIError(resp, err, "status"); err != nil {
		return nil, err
	}
	return &result, nil
}

// TriggerSync asks the daemon to run a sync pass.
func (c *Client) TriggerSync(ctx context.Context) (*api.SyncResponse, error) {
	var result api.SyncResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		Post("/api/sync")
	if err := handleAPIError(resp, err, "trigger sync"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Lists returns every stored list, or only owner's when owner is set.
func (c *Client) Lists(ctx context.Context, owner string) ([]api.ListSummary, error) {
	var result []api.ListSummary
	r := c.client.R().SetContext(ctx).SetSuccessResult(&result)
	if owner != "" {
		r.SetQueryParam("owner", owner)
	}
	resp, err := r.Get("/api/lists")
	if err := handleAPIError(resp, err, "list lists"); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetList(ctx context.Context, id list.ID) (*list.List, error) {
	var result list.List
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": id.Owner, "slug": id.Slug}).
		SetSuccessResult(&result).
		Get("/api/lists/{owner}/{slug}")
	if err := handleAPIError(resp, err, "get list"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Flush pushes a list's queued edits through the daemon.
func (c *Client) Flush(ctx context.Context, id list.ID) (*list.List, error) {
	var result list.List
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": id.Owner, "slug": id.Slug}).
		SetSuccessResult(&result).
		Post("/api/lists/{owner}/{slug}/flush")
	if err := handleAPIError(resp, err, "flush list"); err != nil {
		return nil, err
	}
	return &result, nil
}
