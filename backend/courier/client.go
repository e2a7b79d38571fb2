// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package courier drives the bulk cargo exchange with a courier or the
// internet relay and unpacks collected cargo into local state.
package courier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Client is the transport to a courier or remote relay. Implementations
// handle connectivity; the sync machine only sequences the exchange.
type Client interface {
	// DeliverCargo hands outgoing cargo to the relay.
	DeliverCargo(ctx context.Context, cargo [][]byte) error
	// ListInboundCargo fetches all cargo waiting for this gateway.
	ListInboundCargo(ctx context.Context) ([][]byte, error)
	// DeleteAll acknowledges the inbound cargo so the relay drops it.
	DeleteAll(ctx context.Context) error
}

// HTTPClient talks to a relay exposing the cargo exchange over HTTP with
// CBOR bodies.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) DeliverCargo(ctx context.Context, cargo [][]byte) error {
	body, err := cbor.Marshal(cargo)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/cargo", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/cbor")
	return c.do(req, nil)
}

func (c *HTTPClient) ListInboundCargo(ctx context.Context) ([][]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/cargo", nil)
	if err != nil {
		return nil, err
	}
	var cargo [][]byte
	if err := c.do(req, &cargo); err != nil {
		return nil, err
	}
	return cargo, nil
}

func (c *HTTPClient) DeleteAll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/cargo", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned %s for %s %s", resp.Status, req.Method, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return cbor.Unmarshal(body, out)
}
