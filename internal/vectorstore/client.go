package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/riskcore-io/riskcore/internal/riskerr"
)

// Filters narrows a bulk fetch. Empty fields are unfiltered.
type Filters struct {
	DataTypes  []DataType
	Instrument string
	Direction  Direction
	Limit      int
}

// Stats is the store's lightweight health/growth signal, polled by the
// Memory Manager's background reload loop without taking a bulk fetch.
type Stats struct {
	TotalVectors int64 `json:"totalVectors"`
}

// Client is the outbound §6 contract: fetchVectors, stats, storeOutcome.
// All calls are request/response and the caller is expected to retain its
// last good snapshot across transient failures (never crash on them).
type Client interface {
	FetchVectors(ctx context.Context, filters Filters) ([]Vector, error)
	Stats(ctx context.Context) (Stats, error)
	StoreOutcome(ctx context.Context, v Vector) error
}

// HTTPClient is the production Client: a thin JSON/HTTP facade modeled on
// the teacher's httpclient.ClientPool idiom (retry with linear backoff on
// transport errors and 5xx, client-side rate limiting) rather than a bare
// http.Client.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
}

// Config configures an HTTPClient.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	RatePerSecond  float64 // token-bucket refill rate for outbound calls
	Burst          int
}

func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		userAgent:  "riskcore-vectorstore-client/1.0",
	}
}

func (c *HTTPClient) FetchVectors(ctx context.Context, filters Filters) ([]Vector, error) {
	var out []wireVector
	if err := c.getJSON(ctx, "/vectors", filters, &out); err != nil {
		return nil, riskerr.Wrap("vectorstore.FetchVectors", riskerr.StoreUnavailable, err)
	}
	vectors := make([]Vector, 0, len(out))
	for _, wv := range out {
		v, err := wv.toVector()
		if err != nil {
			log.Warn().Err(err).Str("entrySignalId", wv.EntrySignalID).Msg("skipping unparseable vector")
			continue
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.getJSON(ctx, "/stats", nil, &s); err != nil {
		return Stats{}, riskerr.Wrap("vectorstore.Stats", riskerr.StoreUnavailable, err)
	}
	return s, nil
}

func (c *HTTPClient) StoreOutcome(ctx context.Context, v Vector) error {
	body, err := json.Marshal(fromVector(v))
	if err != nil {
		return riskerr.Wrap("vectorstore.StoreOutcome", riskerr.FeatureParseError, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return riskerr.Wrap("vectorstore.StoreOutcome", riskerr.DeadlineExceeded, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/outcomes", bytes.NewReader(body))
	if err != nil {
		return riskerr.Wrap("vectorstore.StoreOutcome", riskerr.StoreUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.doWithRetry(req)
	if err != nil {
		return riskerr.Wrap("vectorstore.StoreOutcome", riskerr.StoreUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return riskerr.Wrap("vectorstore.StoreOutcome", riskerr.StoreUnavailable,
			fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, query any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	url := c.baseURL + path
	if filters, ok := query.(Filters); ok {
		url += encodeFilters(filters)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.doWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < c.maxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func encodeFilters(f Filters) string {
	if len(f.DataTypes) == 0 && f.Instrument == "" && f.Direction == "" && f.Limit == 0 {
		return ""
	}
	q := "?"
	if f.Instrument != "" {
		q += "instrument=" + f.Instrument + "&"
	}
	if f.Direction != "" {
		q += "direction=" + string(f.Direction) + "&"
	}
	if f.Limit > 0 {
		q += fmt.Sprintf("limit=%d&", f.Limit)
	}
	for _, dt := range f.DataTypes {
		q += "dataType=" + string(dt) + "&"
	}
	return q
}

// wireVector is the JSON shape exchanged with the store; it mirrors Vector
// but keeps the wire format decoupled from the in-process representation.
type wireVector struct {
	EntrySignalID  string             `json:"entrySignalId"`
	Instrument     string             `json:"instrument"`
	Direction      string             `json:"direction"`
	EntryType      string             `json:"entryType,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	DataType       string             `json:"dataType,omitempty"`
	Features       map[string]float64 `json:"features"`
	PnL            float64            `json:"pnl"`
	PnLPerContract *float64           `json:"pnlPerContract,omitempty"`
	MaxProfit      float64            `json:"maxProfit"`
	MaxLoss        float64            `json:"maxLoss"`
	ExitReason     string             `json:"exitReason,omitempty"`
	WasGoodExit    bool               `json:"wasGoodExit"`
	StopLoss       float64            `json:"stopLoss"`
	TakeProfit     float64            `json:"takeProfit"`
}

func (wv wireVector) toVector() (Vector, error) {
	if wv.EntrySignalID == "" {
		return Vector{}, fmt.Errorf("missing entrySignalId")
	}
	return Vector{
		EntrySignalID:  wv.EntrySignalID,
		Instrument:     wv.Instrument,
		Direction:      Direction(wv.Direction),
		EntryType:      wv.EntryType,
		Timestamp:      wv.Timestamp,
		DataType:       DataType(wv.DataType),
		Features:       wv.Features,
		PnL:            wv.PnL,
		PnLPerContract: wv.PnLPerContract,
		MaxProfit:      wv.MaxProfit,
		MaxLoss:        wv.MaxLoss,
		ExitReason:     wv.ExitReason,
		WasGoodExit:    wv.WasGoodExit,
		StopLoss:       wv.StopLoss,
		TakeProfit:     wv.TakeProfit,
	}, nil
}

func fromVector(v Vector) wireVector {
	return wireVector{
		EntrySignalID:  v.EntrySignalID,
		Instrument:     v.Instrument,
		Direction:      string(v.Direction),
		EntryType:      v.EntryType,
		Timestamp:      v.Timestamp,
		DataType:       string(v.DataType),
		Features:       v.Features,
		PnL:            v.PnL,
		PnLPerContract: v.PnLPerContract,
		MaxProfit:      v.MaxProfit,
		MaxLoss:        v.MaxLoss,
		ExitReason:     v.ExitReason,
		WasGoodExit:    v.WasGoodExit,
		StopLoss:       v.StopLoss,
		TakeProfit:     v.TakeProfit,
	}
}
