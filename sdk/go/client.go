// Copyright (C) 2025, MEVShield Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package shieldsdk is a thin Go client for the shieldpool bidder API.
package shieldsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Client talks to a shieldpool node's bidder API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new shieldpool client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RoundState mirrors the round query response.
type RoundState struct {
	PoolID            string          `json:"pool_id"`
	Number            uint64          `json:"number"`
	State             string          `json:"state"`
	OpenedAt          time.Time       `json:"opened_at"`
	Deadline          time.Time       `json:"deadline"`
	HighestBid        decimal.Decimal `json:"highest_bid"`
	HighestBidder     string          `json:"highest_bidder"`
	EncryptedBids     int             `json:"encrypted_bids"`
	TotalEstimatedMEV decimal.Decimal `json:"total_estimated_mev"`
}

// RoundWonEvent mirrors the websocket feed payload.
type RoundWonEvent struct {
	PoolID        string          `json:"pool_id"`
	Round         uint64          `json:"round"`
	Winner        string          `json:"winner"`
	Amount        decimal.Decimal `json:"amount"`
	Sealed        bool            `json:"sealed"`
	LPShare       decimal.Decimal `json:"lp_share"`
	ProtocolShare decimal.Decimal `json:"protocol_share"`
	FinalizedAt   time.Time       `json:"finalized_at"`
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Deposit funds a bidder account.
func (c *Client) Deposit(ctx context.Context, account string, amount decimal.Decimal) error {
	body := map[string]interface{}{"amount": amount}
	return c.post(ctx, "/api/v1/accounts/"+account+"/deposit", body, nil)
}

// SubmitBid places a plaintext bid.
func (c *Client) SubmitBid(ctx context.Context, poolID, bidder string, amount decimal.Decimal) error {
	body := map[string]interface{}{"bidder": bidder, "amount": amount}
	return c.post(ctx, "/api/v1/pools/"+poolID+"/bids", body, nil)
}

// SubmitEncryptedBid places a sealed bid and returns its session handle.
func (c *Client) SubmitEncryptedBid(ctx context.Context, poolID, bidder string, amount decimal.Decimal) (string, error) {
	body := map[string]interface{}{"bidder": bidder, "amount": amount}
	var out struct {
		Session string `json:"session"`
	}
	if err := c.post(ctx, "/api/v1/pools/"+poolID+"/encrypted-bids", body, &out); err != nil {
		return "", err
	}
	return out.Session, nil
}

// GetRound fetches the pool's current round state.
func (c *Client) GetRound(ctx context.Context, poolID string) (*RoundState, error) {
	var out RoundState
	if err := c.get(ctx, "/api/v1/pools/"+poolID+"/round", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Claim pays out the account's claim balance.
func (c *Client) Claim(ctx context.Context, account string) (decimal.Decimal, error) {
	var out struct {
		Claimed decimal.Decimal `json:"claimed"`
	}
	if err := c.post(ctx, "/api/v1/accounts/"+account+"/claim", map[string]interface{}{}, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Claimed, nil
}

// SubscribeRounds streams round-won events until the context ends.
func (c *Client) SubscribeRounds(ctx context.Context) (<-chan RoundWonEvent, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws/rounds"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}

	events := make(chan RoundWonEvent, 16)
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var event RoundWonEvent
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return events, nil
}
