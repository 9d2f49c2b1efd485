// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/querymesh/querymesh/internal/endpoint"
	"github.com/querymesh/querymesh/internal/registry"
)

// DefaultCallTimeout bounds a single client call when the caller has no
// better deadline.
const DefaultCallTimeout = 2 * time.Second

// Client is a one-shot RPC client: construct, make a single call,
// Close. There is no connection pool; concurrent calls use independent
// clients.
type Client struct {
	path string
	hc   *http.Client
}

// NewClient creates a client for the endpoint at path. A zero timeout
// selects DefaultCallTimeout.
func NewClient(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		path: path,
		hc: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return endpoint.Dial(path, timeout)
				},
			},
			Timeout: timeout,
		},
	}
}

// Close releases the client's connection.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}

// Ping checks liveness of the remote endpoint.
func (c *Client) Ping() (Status, error) {
	var status Status
	if err := c.post("ping", struct{}{}, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// RegisterExtension registers an extension identity and broadcast with
// the manager.
func (c *Client) RegisterExtension(info ExtensionInfo, broadcast registry.Broadcast) (Status, error) {
	var status Status
	req := RegisterRequest{Info: info, Broadcast: broadcast}
	if err := c.post("registerExtension", req, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// Extensions lists the manager's registered extensions.
func (c *Client) Extensions() (ExtensionList, error) {
	var list ExtensionList
	if err := c.post("extensions", struct{}{}, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Options fetches the manager's exported flag table.
func (c *Client) Options() (OptionList, error) {
	var options OptionList
	if err := c.post("options", struct{}{}, &options); err != nil {
		return nil, err
	}
	return options, nil
}

// Query runs a SQL query on the manager.
func (c *Client) Query(sql string) (Response, error) {
	var resp Response
	if err := c.post("query", QueryRequest{SQL: sql}, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// GetQueryColumns resolves the column metadata of a SQL query.
func (c *Client) GetQueryColumns(sql string) (Response, error) {
	var resp Response
	if err := c.post("getQueryColumns", QueryRequest{SQL: sql}, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Call invokes a plugin item on the remote endpoint.
func (c *Client) Call(registryName, item string, request map[string]string) (Response, error) {
	var resp Response
	req := CallRequest{Registry: registryName, Item: item, Request: request}
	if err := c.post("call", req, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Shutdown asks the remote endpoint to stop.
func (c *Client) Shutdown() error {
	var status Status
	return c.post("shutdown", struct{}{}, &status)
}

// post performs one request/response round trip.
func (c *Client) post(op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return oops.Code("TRANSPORT_ENCODE").With("op", op).Wrap(err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://local/"+op, bytes.NewReader(body))
	if err != nil {
		return oops.Code("TRANSPORT_REQUEST").With("op", op).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, ulid.Make().String())

	resp, err := c.hc.Do(req)
	if err != nil {
		return oops.Code("TRANSPORT_CALL").With("op", op).With("path", c.path).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return oops.Code("TRANSPORT_CALL").With("op", op).With("path", c.path).
			Errorf("unexpected response status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Code("TRANSPORT_DECODE").With("op", op).Wrap(err)
	}
	return nil
}
