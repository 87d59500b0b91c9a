package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/model"
)

// Client is a typed HTTP client for the attempt API. A Client bound to an
// attempt via Bind satisfies the countdown loop's Ledger and Expirer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	convincerID string
	attemptID   string
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Bind returns a copy of the client scoped to one convincer and attempt.
func (c *Client) Bind(convincerID, attemptID string) *Client {
	bound := *c
	bound.convincerID = convincerID
	bound.attemptID = attemptID
	return &bound
}

type RegisterResult struct {
	Convincer *model.Convincer `json:"convincer"`
	APIToken  string           `json:"apiToken"`
}

func (c *Client) Register(ctx context.Context, name, email string) (*RegisterResult, error) {
	var result RegisterResult
	err := c.do(ctx, http.MethodPost, "/v1/convincers",
		map[string]string{"name": name, "email": email}, &result)
	if err != nil {
		return nil, err
	}
	c.token = result.APIToken
	return &result, nil
}

type StartResult struct {
	Attempt        *model.Attempt `json:"attempt"`
	Resumed        bool           `json:"resumed"`
	BalanceSeconds int            `json:"balanceSeconds"`
}

func (c *Client) StartAttempt(ctx context.Context) (*StartResult, error) {
	var result StartResult
	if err := c.do(ctx, http.MethodPost, "/v1/attempts", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type SubmitResult struct {
	Message *model.Message `json:"message"`
	Attempt *model.Attempt `json:"attempt"`
	Delta   int            `json:"delta"`
	Won     bool           `json:"won"`
}

func (c *Client) SubmitMessage(ctx context.Context, body string) (*SubmitResult, error) {
	var result SubmitResult
	err := c.do(ctx, http.MethodPost, "/v1/messages",
		map[string]string{"attemptId": c.attemptID, "body": body}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type CreditResult struct {
	BalanceSeconds int  `json:"balanceSeconds"`
	Applied        bool `json:"applied"`
}

func (c *Client) CreditTime(ctx context.Context, reference string, seconds int) (*CreditResult, error) {
	var result CreditResult
	err := c.do(ctx, http.MethodPost, "/v1/payments",
		map[string]any{"reference": reference, "amount_time_seconds": seconds}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Balance(ctx context.Context) (int, error) {
	var result struct {
		BalanceSeconds int `json:"balanceSeconds"`
	}
	path := fmt.Sprintf("/v1/time-balance/%s", c.convincerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return 0, err
	}
	return result.BalanceSeconds, nil
}

// Debit flushes consumed seconds to the server-side ledger. Satisfies the
// countdown loop's Ledger.
func (c *Client) Debit(ctx context.Context, seconds int) (int, error) {
	var result struct {
		BalanceSeconds int `json:"balanceSeconds"`
	}
	path := fmt.Sprintf("/v1/time-balance/%s", c.convincerID)
	err := c.do(ctx, http.MethodPut, path,
		map[string]int{"seconds_to_subtract": seconds}, &result)
	if err != nil {
		return 0, err
	}
	return result.BalanceSeconds, nil
}

type expireResult struct {
	Attempt      *model.Attempt `json:"attempt"`
	Expired      bool           `json:"expired"`
	RearmSeconds int            `json:"rearmSeconds"`
}

// ExpireCheck asks the server for the authoritative zero-crossing verdict.
// Satisfies the countdown loop's Expirer.
func (c *Client) ExpireCheck(ctx context.Context) (int, bool, error) {
	var result expireResult
	path := fmt.Sprintf("/v1/attempts/%s", c.attemptID)
	err := c.do(ctx, http.MethodPatch, path, map[string]string{"status": "expired"}, &result)
	if err != nil {
		return 0, false, err
	}
	return result.RearmSeconds, result.Expired, nil
}

func (c *Client) Abandon(ctx context.Context, unflushedSeconds int) (*model.Attempt, error) {
	var result struct {
		Attempt *model.Attempt `json:"attempt"`
	}
	path := fmt.Sprintf("/v1/attempts/%s", c.attemptID)
	err := c.do(ctx, http.MethodPatch, path,
		map[string]any{"status": "abandoned", "seconds_unflushed": unflushedSeconds}, &result)
	if err != nil {
		return nil, err
	}
	return result.Attempt, nil
}

func (c *Client) Complete(ctx context.Context) (*model.Attempt, error) {
	var result struct {
		Attempt *model.Attempt `json:"attempt"`
	}
	path := fmt.Sprintf("/v1/attempts/%s", c.attemptID)
	err := c.do(ctx, http.MethodPatch, path, map[string]string{"status": "completed"}, &result)
	if err != nil {
		return nil, err
	}
	return result.Attempt, nil
}

// Beacon fires a best-effort final debit without waiting for the reply.
// Used on teardown paths where blocking is not acceptable.
func (c *Client) Beacon(seconds int) {
	if seconds <= 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, err := c.Debit(ctx, seconds); err != nil {
			log.Warn().Err(err).Int("seconds", seconds).Msg("teardown flush failed")
		}
	}()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Error   string              `json:"error"`
		Code    apperrors.ErrorCode `json:"code"`
		Details any                 `json:"details,omitempty"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Code != "" {
		return apperrors.New(envelope.Code, envelope.Error).WithDetails(envelope.Details)
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
