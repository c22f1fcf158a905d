// Package node is the HTTP client for the channel service. It exposes the
// service's REST API behind the channel.Service interface and classifies
// failures so the coordinators can tell a counterparty timeout from a missing
// record or a transport outage.
package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TtheBC01/vector/channel"
)

// Client talks to one channel service instance.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient builds a client against the service's base URL.
func NewClient(client *http.Client, baseURL string) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("node client: base URL required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{client: client, baseURL: trimmed}, nil
}

type nodeError struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// GetStateChannel fetches a channel by address.
func (c *Client) GetStateChannel(ctx context.Context, address common.Address) (*channel.Channel, error) {
	out := &channel.Channel{}
	if err := c.get(ctx, "/channels/"+address.Hex(), out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStateChannelByParticipants fetches the channel between two identifiers
// on a chain.
func (c *Client) GetStateChannelByParticipants(ctx context.Context, selfIdentifier, otherIdentifier string, chainID uint64) (*channel.Channel, error) {
	path := fmt.Sprintf("/channels/participants/%s/%s/%s",
		url.PathEscape(selfIdentifier), url.PathEscape(otherIdentifier), strconv.FormatUint(chainID, 10))
	out := &channel.Channel{}
	if err := c.get(ctx, path, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransfersByRoutingID fetches every leg of a payment.
func (c *Client) GetTransfersByRoutingID(ctx context.Context, routingID string) ([]*channel.Transfer, error) {
	var out []*channel.Transfer
	if err := c.get(ctx, "/transfers/routing-id/"+url.PathEscape(routingID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type depositBody struct {
	channel.DepositRequest
	ChainID uint64 `json:"chainId"`
}

// Deposit funds the router's side of a channel.
func (c *Client) Deposit(ctx context.Context, req channel.DepositRequest, chainID uint64) (*channel.DepositReceipt, error) {
	out := &channel.DepositReceipt{}
	if err := c.post(ctx, "/deposit", depositBody{DepositRequest: req, ChainID: chainID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConditionalTransfer creates a conditional transfer.
func (c *Client) ConditionalTransfer(ctx context.Context, req channel.CreateTransferRequest) (*channel.Transfer, error) {
	out := &channel.Transfer{}
	if err := c.post(ctx, "/transfers/create", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveTransfer unlocks a conditional transfer.
func (c *Client) ResolveTransfer(ctx context.Context, req channel.ResolveTransferRequest) (*channel.Transfer, error) {
	out := &channel.Transfer{}
	if err := c.post(ctx, "/transfers/resolve", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &channel.ServiceError{Message: "build request", Reason: channel.ReasonUnavailable, Cause: err}
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return &channel.ServiceError{Message: "encode request", Reason: channel.ReasonUnavailable, Cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return &channel.ServiceError{Message: "build request", Reason: channel.ReasonUnavailable, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		reason := channel.ReasonUnavailable
		if isTimeoutErr(err) {
			reason = channel.ReasonTimeout
		}
		return &channel.ServiceError{Message: "call channel service", Reason: reason, Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return &channel.ServiceError{Message: "record not found", Reason: channel.ReasonNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure nodeError
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if failure.Message == "" {
			failure.Message = fmt.Sprintf("channel service returned %d", resp.StatusCode)
		}
		return &channel.ServiceError{Message: failure.Message, Reason: channel.ErrorReason(failure.Reason)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &channel.ServiceError{Message: "decode response", Reason: channel.ReasonUnavailable, Cause: err}
	}
	return nil
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
