// Package client talks to the draw service HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// DrawClient calls the draw service control endpoints.
type DrawClient struct {
	baseURL string
	client  *http.Client
}

// NewDrawClient creates a DrawClient pointing at the given base URL.
func NewDrawClient(baseURL string) *DrawClient {
	return &DrawClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// APIError is a non-2xx reply from the draw service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// Failure is one lottery a batch could not process.
type Failure struct {
	LotteryID int64  `json:"lottery_id"`
	Error     string `json:"error"`
	Permanent bool   `json:"permanent"`
}

// BatchResult summarizes a draw or export run.
type BatchResult struct {
	Processed int       `json:"processed"`
	Succeeded []int64   `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// DrawOutcome describes one completed draw.
type DrawOutcome struct {
	LotteryID int64          `json:"lottery_id"`
	Winners   []model.Winner `json:"winners"`
	PoolSize  int            `json:"pool_size"`
	Seed      string         `json:"seed,omitempty"`
	Reused    bool           `json:"reused_existing_winners"`
}

// Lottery is a lottery with its derived stage.
type Lottery struct {
	model.Lottery
	Stage model.Stage `json:"stage"`
}

func (c *DrawClient) RunDraws(ctx context.Context) (*BatchResult, error) {
	var res BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/draws/run", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *DrawClient) RunExports(ctx context.Context) (*BatchResult, error) {
	var res BatchResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/exports/run", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *DrawClient) DueLotteries(ctx context.Context) ([]Lottery, error) {
	var res struct {
		Lotteries []Lottery `json:"lotteries"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/lotteries/due", &res); err != nil {
		return nil, err
	}
	return res.Lotteries, nil
}

func (c *DrawClient) GetLottery(ctx context.Context, id int64) (*Lottery, error) {
	var res Lottery
	if err := c.do(ctx, http.MethodGet, lotteryPath(id, ""), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DrawLottery draws a single due lottery immediately.
func (c *DrawClient) DrawLottery(ctx context.Context, id int64) (*DrawOutcome, error) {
	var res DrawOutcome
	if err := c.do(ctx, http.MethodPost, lotteryPath(id, "/draw"), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *DrawClient) GetWinners(ctx context.Context, id int64) ([]model.Winner, error) {
	var res struct {
		Winners []model.Winner `json:"winners"`
	}
	if err := c.do(ctx, http.MethodGet, lotteryPath(id, "/winners"), &res); err != nil {
		return nil, err
	}
	return res.Winners, nil
}

func (c *DrawClient) GetTickets(ctx context.Context, id int64) ([]model.Ticket, error) {
	var res struct {
		Tickets []model.Ticket `json:"tickets"`
	}
	if err := c.do(ctx, http.MethodGet, lotteryPath(id, "/tickets"), &res); err != nil {
		return nil, err
	}
	return res.Tickets, nil
}

// PurgeTickets drops an exported lottery's ticket partition.
func (c *DrawClient) PurgeTickets(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, lotteryPath(id, "/tickets"), nil)
}

func lotteryPath(id int64, suffix string) string {
	return "/api/v1/lotteries/" + strconv.FormatInt(id, 10) + suffix
}

func (c *DrawClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			apiErr.Message, apiErr.Code = e.Error, e.Code
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
