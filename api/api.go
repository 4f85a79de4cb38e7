package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orbot/config"
	"orbot/interfaces"
	"orbot/internal/utils"
	"orbot/logging"
	"orbot/models"
)

// RESTClient provides methods to interact with the OANDA v3 REST API.
// It is both the bar source and the position gateway of the live bot.
type RESTClient struct {
	Config *config.Config
	Logger logging.LoggerInterface
	HTTP   *http.Client
}

var (
	_ interfaces.BarSource = (*RESTClient)(nil)
	_ interfaces.Gateway   = (*RESTClient)(nil)
)

// NewRESTClient creates a new REST API client
func NewRESTClient(cfg *config.Config, logger logging.LoggerInterface) *RESTClient {
	return &RESTClient{
		Config: cfg,
		Logger: logger,
		HTTP:   &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oanda status %d: %s", e.Status, e.Body)
}

// Retryable reports throttling and server-side failures.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func (c *RESTClient) logInfo(format string, v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(format, v...)
	}
}

func (c *RESTClient) logError(format string, v ...interface{}) {
	if c.Logger != nil {
		c.Logger.Error(format, v...)
	}
}

func (c *RESTClient) accountPath(suffix string) string {
	return "/v3/accounts/" + url.PathEscape(c.Config.OandaAccountID) + suffix
}

// do sends one request and returns the body of a 2xx reply.
func (c *RESTClient) do(ctx context.Context, method, path string, q url.Values, payload interface{}) ([]byte, error) {
	target := strings.TrimRight(c.Config.OandaHost, "/") + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var body io.Reader
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	// Log outgoing request
	if raw != nil {
		c.logInfo("Sending %s request to broker: %s, Body: %s", method, path, string(raw))
	} else {
		c.logInfo("Sending %s request to broker: %s?%s", method, path, q.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.OandaToken)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.logError("Failed to send %s request to broker: %v", method, err)
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	// Log incoming response
	c.logInfo("Received response from broker for %s: Status %d, Body: %s", path, resp.StatusCode, utils.Truncate(string(respBody), 2000))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, &StatusError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// retrying runs fn under the configured fetch policy. Client errors other
// than throttling are not retried.
func (c *RESTClient) retrying(ctx context.Context, what string, fn func() error) error {
	return c.Config.FetchRetry.Do(ctx, func(attempt int) error {
		err := fn()
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return utils.Permanent(err)
		}
		c.logError("%s attempt %d failed: %v", what, attempt, err)
		return err
	})
}

// FetchRecent returns the last n M1 mid candles, oldest first, stamped in the
// market location. The still-forming candle is returned with Complete=false.
func (c *RESTClient) FetchRecent(ctx context.Context, n int) ([]models.Bar, error) {
	q := url.Values{}
	q.Set("granularity", "M1")
	q.Set("count", strconv.Itoa(n))
	q.Set("price", "M")
	q.Set("smooth", "true")
	path := "/v3/instruments/" + url.PathEscape(c.Config.Instrument) + "/candles"

	var out []models.Bar
	err := c.retrying(ctx, "fetch candles", func() error {
		body, err := c.do(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return err
		}
		out, err = parseCandles(body, c.Config.Location)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseCandles(body []byte, loc *time.Location) ([]models.Bar, error) {
	var r struct {
		Candles []struct {
			Time     string `json:"time"`
			Complete bool   `json:"complete"`
			Volume   int64  `json:"volume"`
			Mid      struct {
				O string `json:"o"`
				H string `json:"h"`
				L string `json:"l"`
				C string `json:"c"`
			} `json:"mid"`
		} `json:"candles"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]models.Bar, 0, len(r.Candles))
	for _, cd := range r.Candles {
		ts, err := time.Parse(time.RFC3339Nano, cd.Time)
		if err != nil {
			return nil, fmt.Errorf("candle time %q: %w", cd.Time, err)
		}
		out = append(out, models.Bar{
			Time:     ts.In(loc),
			Open:     utils.ParseFloat(cd.Mid.O),
			High:     utils.ParseFloat(cd.Mid.H),
			Low:      utils.ParseFloat(cd.Mid.L),
			Close:    utils.ParseFloat(cd.Mid.C),
			Volume:   float64(cd.Volume),
			Complete: cd.Complete,
		})
	}
	return out, nil
}

// OpenMarketPosition submits a market order with stop and target attached as
// distances from the fill. A cancel or reject comes back as *RejectionError.
func (c *RESTClient) OpenMarketPosition(ctx context.Context, side models.Side, units, stopOffset, targetOffset float64) (models.Fill, error) {
	units = side.Sign() * abs(units)
	tick := c.Config.PriceTick
	payload := map[string]interface{}{
		"order": map[string]interface{}{
			"units":            utils.FormatUnits(units),
			"instrument":       c.Config.Instrument,
			"type":             "MARKET",
			"timeInForce":      "FOK",
			"positionFill":     "DEFAULT",
			"stopLossOnFill":   map[string]string{"distance": utils.FormatPriceToString(stopOffset, tick)},
			"takeProfitOnFill": map[string]string{"distance": utils.FormatPriceToString(targetOffset, tick)},
		},
	}

	body, err := c.do(ctx, http.MethodPost, c.accountPath("/orders"), nil, payload)

	var r struct {
		OrderCreateTransaction struct {
			ID string `json:"id"`
		} `json:"orderCreateTransaction"`
		OrderFillTransaction *struct {
			ID          string `json:"id"`
			Price       string `json:"price"`
			Time        string `json:"time"`
			TradeOpened *struct {
				TradeID string `json:"tradeID"`
				Units   string `json:"units"`
				Price   string `json:"price"`
			} `json:"tradeOpened"`
		} `json:"orderFillTransaction"`
		OrderCancelTransaction *struct {
			Reason string `json:"reason"`
		} `json:"orderCancelTransaction"`
		OrderRejectTransaction *struct {
			RejectReason string `json:"rejectReason"`
		} `json:"orderRejectTransaction"`
		ErrorMessage string `json:"errorMessage"`
	}
	if len(body) > 0 {
		if jerr := json.Unmarshal(body, &r); jerr != nil && err == nil {
			return models.Fill{}, fmt.Errorf("decode order response: %w", jerr)
		}
	}

	switch {
	case r.OrderRejectTransaction != nil:
		return models.Fill{}, &interfaces.RejectionError{Reason: r.OrderRejectTransaction.RejectReason, Detail: r.ErrorMessage}
	case r.OrderCancelTransaction != nil:
		return models.Fill{}, &interfaces.RejectionError{Reason: r.OrderCancelTransaction.Reason}
	case err != nil:
		return models.Fill{}, err
	case r.OrderFillTransaction == nil:
		return models.Fill{}, errors.New("order response has no fill")
	}

	ft := r.OrderFillTransaction
	fill := models.Fill{
		OrderID: r.OrderCreateTransaction.ID,
		TradeID: ft.ID,
		Price:   utils.ParseFloat(ft.Price),
		Units:   units,
		Time:    parseTime(ft.Time, c.Config.Location),
	}
	if ft.TradeOpened != nil {
		fill.TradeID = ft.TradeOpened.TradeID
		fill.Units = utils.ParseFloat(ft.TradeOpened.Units)
		if p := utils.ParseFloat(ft.TradeOpened.Price); p > 0 {
			fill.Price = p
		}
	}
	return fill, nil
}

// ListOpenPositions returns the open trades on the configured instrument.
func (c *RESTClient) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	var body []byte
	err := c.retrying(ctx, "list open trades", func() error {
		var err error
		body, err = c.do(ctx, http.MethodGet, c.accountPath("/openTrades"), nil, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var r struct {
		Trades []struct {
			ID           string `json:"id"`
			Instrument   string `json:"instrument"`
			Price        string `json:"price"`
			OpenTime     string `json:"openTime"`
			CurrentUnits string `json:"currentUnits"`
			UnrealizedPL string `json:"unrealizedPL"`
		} `json:"trades"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode open trades: %w", err)
	}
	out := make([]models.Position, 0, len(r.Trades))
	for _, tr := range r.Trades {
		if c.Config.Instrument != "" && tr.Instrument != c.Config.Instrument {
			continue
		}
		out = append(out, models.Position{
			ID:           tr.ID,
			Instrument:   tr.Instrument,
			Units:        utils.ParseFloat(tr.CurrentUnits),
			Price:        utils.ParseFloat(tr.Price),
			UnrealizedPL: utils.ParseFloat(tr.UnrealizedPL),
			OpenTime:     parseTime(tr.OpenTime, c.Config.Location),
		})
	}
	return out, nil
}

// CloseAllPositions closes every open trade on the instrument. It keeps going
// past individual failures and returns them joined.
func (c *RESTClient) CloseAllPositions(ctx context.Context) ([]models.Closed, error) {
	open, err := c.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	var closed []models.Closed
	var errs []error
	for _, p := range open {
		body, err := c.do(ctx, http.MethodPut, c.accountPath("/trades/"+url.PathEscape(p.ID)+"/close"), nil, map[string]string{"units": "ALL"})
		if err != nil {
			errs = append(errs, fmt.Errorf("close trade %s: %w", p.ID, err))
			continue
		}
		var r struct {
			OrderFillTransaction struct {
				Price string `json:"price"`
				PL    string `json:"pl"`
				Units string `json:"units"`
			} `json:"orderFillTransaction"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			errs = append(errs, fmt.Errorf("decode close %s: %w", p.ID, err))
			continue
		}
		closed = append(closed, models.Closed{
			ID:         p.ID,
			Price:      utils.ParseFloat(r.OrderFillTransaction.Price),
			RealizedPL: utils.ParseFloat(r.OrderFillTransaction.PL),
			Units:      utils.ParseFloat(r.OrderFillTransaction.Units),
		})
	}
	return closed, errors.Join(errs...)
}

// AccountSnapshot reads the account summary.
func (c *RESTClient) AccountSnapshot(ctx context.Context) (models.AccountSnapshot, error) {
	var body []byte
	err := c.retrying(ctx, "account summary", func() error {
		var err error
		body, err = c.do(ctx, http.MethodGet, c.accountPath("/summary"), nil, nil)
		return err
	})
	if err != nil {
		return models.AccountSnapshot{}, err
	}

	var r struct {
		Account struct {
			Balance         string `json:"balance"`
			NAV             string `json:"NAV"`
			UnrealizedPL    string `json:"unrealizedPL"`
			MarginAvailable string `json:"marginAvailable"`
			OpenTradeCount  int    `json:"openTradeCount"`
			Currency        string `json:"currency"`
		} `json:"account"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return models.AccountSnapshot{}, fmt.Errorf("decode account summary: %w", err)
	}
	return models.AccountSnapshot{
		Time:            time.Now().In(c.location()),
		Balance:         utils.ParseFloat(r.Account.Balance),
		NAV:             utils.ParseFloat(r.Account.NAV),
		UnrealizedPL:    utils.ParseFloat(r.Account.UnrealizedPL),
		MarginAvailable: utils.ParseFloat(r.Account.MarginAvailable),
		OpenCount:       r.Account.OpenTradeCount,
		Currency:        r.Account.Currency,
	}, nil
}

// Account is one entry of the token's account list.
type Account struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

// Accounts lists the accounts the token can reach.
func (c *RESTClient) Accounts(ctx context.Context) ([]Account, error) {
	var body []byte
	err := c.retrying(ctx, "list accounts", func() error {
		var err error
		body, err = c.do(ctx, http.MethodGet, "/v3/accounts", nil, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	var r struct {
		Accounts []Account `json:"accounts"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return r.Accounts, nil
}

func (c *RESTClient) location() *time.Location {
	if c.Config.Location != nil {
		return c.Config.Location
	}
	return time.UTC
}

func parseTime(s string, loc *time.Location) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	if loc != nil {
		ts = ts.In(loc)
	}
	return ts
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
