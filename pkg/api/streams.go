package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
)

type streamList struct {
	LogStreams []registry.LogStream `json:"logStreams"`
}

type overrideList struct {
	Overrides []registry.LogStreamOverride `json:"overrides"`
}

func streamPath(id string) string {
	return "/logStreams/" + url.PathEscape(id)
}

func overridePath(streamID, overrideID string) string {
	p := streamPath(streamID) + "/overrides"
	if overrideID != "" {
		p += "/" + url.PathEscape(overrideID)
	}
	return p
}

// ListStreams returns every stream the account owns.
func (c *Client) ListStreams(ctx context.Context) ([]registry.LogStream, error) {
	var out streamList
	if err := c.do(ctx, http.MethodGet, "/logStreams", nil, &out, target{}); err != nil {
		return nil, err
	}
	return out.LogStreams, nil
}

// CreateStream creates a stream and returns the stored object.
func (c *Client) CreateStream(ctx context.Context, in registry.StreamInput) (registry.LogStream, error) {
	var out registry.LogStream
	err := c.do(ctx, http.MethodPost, "/logStreams", in, &out, target{resource: "resource", id: in.ResourceID})
	return out, err
}

// UpdateStream patches stream id.
func (c *Client) UpdateStream(ctx context.Context, id string, patch registry.StreamPatch) (registry.LogStream, error) {
	var out registry.LogStream
	err := c.do(ctx, http.MethodPut, streamPath(id), patch, &out, target{resource: "log stream", id: id})
	return out, err
}

// DeleteStream removes stream id.
func (c *Client) DeleteStream(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, streamPath(id), nil, nil, target{resource: "log stream", id: id})
}

// ListOverrides returns the overrides attached to streamID.
func (c *Client) ListOverrides(ctx context.Context, streamID string) ([]registry.LogStreamOverride, error) {
	var out overrideList
	if err := c.do(ctx, http.MethodGet, overridePath(streamID, ""), nil, &out, target{resource: "log stream", id: streamID}); err != nil {
		return nil, err
	}
	return out.Overrides, nil
}

// CreateOverride attaches an override to streamID.
func (c *Client) CreateOverride(ctx context.Context, streamID string, in registry.OverrideInput) (registry.LogStreamOverride, error) {
	var out registry.LogStreamOverride
	err := c.do(ctx, http.MethodPost, overridePath(streamID, ""), in, &out, target{resource: "log stream", id: streamID})
	return out, err
}

// UpdateOverride replaces the override map of overrideID.
func (c *Client) UpdateOverride(ctx context.Context, streamID, overrideID string, in registry.OverrideInput) (registry.LogStreamOverride, error) {
	var out registry.LogStreamOverride
	err := c.do(ctx, http.MethodPut, overridePath(streamID, overrideID), in, &out, target{resource: "override", id: overrideID})
	return out, err
}

// DeleteOverride removes overrideID from streamID.
func (c *Client) DeleteOverride(ctx context.Context, streamID, overrideID string) error {
	return c.do(ctx, http.MethodDelete, overridePath(streamID, overrideID), nil, nil, target{resource: "override", id: overrideID})
}

// ResourceExists reports whether the remote knows resourceID.
func (c *Client) ResourceExists(ctx context.Context, resourceID string) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/resources/"+url.PathEscape(resourceID), nil, nil, target{resource: "resource", id: resourceID})
	switch {
	case err == nil:
		return true, nil
	case errors.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

var _ registry.Backend = (*Client)(nil)
