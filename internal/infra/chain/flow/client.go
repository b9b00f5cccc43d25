// Package flow implements chain.Querier against the Flow Access REST API.
package flow

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vietddude/planbridge/internal/core/config"
	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/metrics"
	"github.com/vietddude/planbridge/internal/infra/chain"
)

var _ chain.Querier = (*Client)(nil)

type Client struct {
	baseURL    string
	network    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      chain.RetryConfig
	scripts    *strings.Replacer
	tokens     []string
	log        *slog.Logger
}

// NewClient builds a client from the chain section of the config.
func NewClient(cfg config.ChainConfig) *Client {
	pairs := make([]string, 0, len(cfg.Contracts)*2)
	names := make([]string, 0, len(cfg.Contracts))
	for name := range cfg.Contracts {
		names = append(names, name)
	}
	// Longest first so 0xMockUSD never shadows a longer placeholder.
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		pairs = append(pairs, "0x"+name, cfg.Contracts[name])
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}

	retry := chain.DefaultRetryConfig
	if cfg.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		retry.InitialDelay = cfg.RetryBaseDelay
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.AccessNode, "/"),
		network: string(cfg.Network),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		retry:   retry,
		scripts: strings.NewReplacer(pairs...),
		tokens:  cfg.TrackedTokens,
		log:     slog.Default().With("component", "flow", "network", cfg.Network),
	}
}

func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	var blocks []struct {
		Header struct {
			ID     string `json:"id"`
			Height string `json:"height"`
		} `json:"header"`
	}
	if err := c.do(ctx, "blocks", http.MethodGet, "/v1/blocks?height=sealed", nil, &blocks); err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		return 0, fmt.Errorf("empty sealed block response")
	}
	height, err := strconv.ParseUint(blocks[0].Header.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block height %q: %w", blocks[0].Header.Height, err)
	}
	metrics.ChainLatestHeight.WithLabelValues(c.network).Set(float64(height))
	return height, nil
}

type blockEvents struct {
	BlockID     string `json:"block_id"`
	BlockHeight string `json:"block_height"`
	Events      []struct {
		Type             string `json:"type"`
		TransactionID    string `json:"transaction_id"`
		TransactionIndex string `json:"transaction_index"`
		EventIndex       string `json:"event_index"`
		Payload          string `json:"payload"`
	} `json:"events"`
}

func (c *Client) Events(ctx context.Context, req chain.EventsRequest) ([]domain.EventRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("type", req.Type)
	q.Set("start_height", strconv.FormatUint(req.From, 10))
	q.Set("end_height", strconv.FormatUint(req.To, 10))

	var blocks []blockEvents
	if err := c.do(ctx, "events", http.MethodGet, "/v1/events?"+q.Encode(), nil, &blocks); err != nil {
		return nil, err
	}

	var out []domain.EventRecord
	for _, b := range blocks {
		height, err := strconv.ParseUint(b.BlockHeight, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse block height %q: %w", b.BlockHeight, err)
		}
		for _, e := range b.Events {
			decoded, err := decodeBase64Value(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("decode event payload in tx %s: %w", e.TransactionID, err)
			}
			comp, ok := decoded.(Composite)
			if !ok {
				return nil, fmt.Errorf("event payload in tx %s is %T", e.TransactionID, decoded)
			}
			txIndex, _ := strconv.Atoi(e.TransactionIndex)
			evIndex, _ := strconv.Atoi(e.EventIndex)
			out = append(out, domain.EventRecord{
				Type:             e.Type,
				BlockHeight:      height,
				BlockID:          b.BlockID,
				TransactionID:    e.TransactionID,
				TransactionIndex: txIndex,
				EventIndex:       evIndex,
				Fields:           comp.Fields,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockHeight != out[j].BlockHeight {
			return out[i].BlockHeight < out[j].BlockHeight
		}
		if out[i].TransactionIndex != out[j].TransactionIndex {
			return out[i].TransactionIndex < out[j].TransactionIndex
		}
		return out[i].EventIndex < out[j].EventIndex
	})
	return out, nil
}

func (c *Client) PlanIDs(ctx context.Context, address string) ([]uint64, error) {
	v, err := c.executeScript(ctx, "plan_ids", planIDsScript, encodeArgument("Address", normalizeHex(address)))
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("plan ids result is %T", v)
	}
	ids := make([]uint64, 0, len(items))
	for _, item := range items {
		id, ok := item.(uint64)
		if !ok {
			return nil, fmt.Errorf("plan id is %T", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) PlanSnapshot(ctx context.Context, address string, planID uint64) (*domain.PlanSnapshot, error) {
	v, err := c.executeScript(ctx, "plan", planScript,
		encodeArgument("Address", normalizeHex(address)),
		encodeArgument("UInt64", strconv.FormatUint(planID, 10)),
	)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %d", chain.ErrPlanNotFound, planID)
	}
	comp, ok := v.(Composite)
	if !ok {
		return nil, fmt.Errorf("plan result is %T", v)
	}
	snap, err := snapshotFromFields(comp.Fields, address)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Plans(ctx context.Context, address string) ([]domain.PlanSnapshot, error) {
	v, err := c.executeScript(ctx, "plans", plansScript, encodeArgument("Address", normalizeHex(address)))
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("plans result is %T", v)
	}
	plans := make([]domain.PlanSnapshot, 0, len(items))
	for _, item := range items {
		comp, ok := item.(Composite)
		if !ok {
			return nil, fmt.Errorf("plan entry is %T", item)
		}
		snap, err := snapshotFromFields(comp.Fields, address)
		if err != nil {
			return nil, err
		}
		plans = append(plans, snap)
	}
	return plans, nil
}

func (c *Client) TokenBalances(ctx context.Context, address string) (map[string]decimal.Decimal, error) {
	arg := encodeArgument("Address", normalizeHex(address))

	native, err := c.executeScript(ctx, "flow_balance", flowBalanceScript, arg)
	if err != nil {
		return nil, err
	}
	nativeBal, ok := native.(decimal.Decimal)
	if !ok {
		return nil, fmt.Errorf("native balance is %T", native)
	}

	v, err := c.executeScript(ctx, "token_balances", tokenBalancesScript, arg)
	if err != nil {
		return nil, err
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("token balances result is %T", v)
	}

	balances := map[string]decimal.Decimal{chain.NativeToken: nativeBal}
	for _, symbol := range c.tokens {
		bal, err := fieldDecimal(raw, symbol)
		if err != nil {
			bal = decimal.Zero
		}
		balances[symbol] = bal
	}
	return balances, nil
}

func snapshotFromFields(fields map[string]any, owner string) (domain.PlanSnapshot, error) {
	var (
		s   domain.PlanSnapshot
		err error
	)
	if s.PlanID, err = fieldUint64(fields, "planId"); err != nil {
		return s, err
	}
	if s.AmountPerExecution, err = fieldDecimal(fields, "amountPerExecution"); err != nil {
		return s, err
	}
	cycle, err := fieldDecimal(fields, "timeCycle")
	if err != nil {
		return s, err
	}
	s.TimeCycle = secondsToDuration(cycle)
	s.TotalExecutions, _ = fieldUint64(fields, "totalExecutions")
	s.MaxExecutions, _ = fieldUint64(fields, "maxExecutions")

	last, err := fieldDecimal(fields, "lastExecutionTime")
	if err != nil {
		last, _ = fieldDecimal(fields, "lastExecution")
	}
	s.LastExecutionTime = secondsToTime(last)
	s.IsActive = fieldBool(fields, "isActive")
	s.IsPaused = fieldBool(fields, "isPaused")
	s.Balance, _ = fieldDecimal(fields, "balance")

	s.Owner = fieldString(fields, "owner")
	if s.Owner == "" {
		s.Owner = owner
	}
	s.Owner = strings.ToLower(s.Owner)
	return s, nil
}

func (c *Client) executeScript(ctx context.Context, name, template string, args ...string) (any, error) {
	body := map[string]any{
		"script":    base64.StdEncoding.EncodeToString([]byte(c.scripts.Replace(template))),
		"arguments": args,
	}
	var encoded string
	if err := c.do(ctx, "script_"+name, http.MethodPost, "/v1/scripts?block_height=sealed", body, &encoded); err != nil {
		return nil, err
	}
	v, err := decodeBase64Value(encoded)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", name, err)
	}
	return v, nil
}

// do issues one rate-limited request with retry and decodes the JSON answer into out.
func (c *Client) do(ctx context.Context, method, httpMethod, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	start := time.Now()
	metrics.ChainCallsTotal.WithLabelValues(c.network, method).Inc()

	raw, err := chain.CallWithRetry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s call: %w", method, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &chain.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	metrics.ChainLatency.WithLabelValues(c.network, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChainErrorsTotal.WithLabelValues(c.network, method, errorType(err)).Inc()
		c.log.Debug("Access node call failed", "method", method, "error", err)
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s response: %w", method, err)
	}
	return nil
}

func errorType(err error) string {
	var se *chain.StatusError
	switch {
	case errors.As(err, &se):
		return strconv.Itoa(se.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}
