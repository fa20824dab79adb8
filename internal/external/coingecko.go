package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/trahn-gridcore/internal/httputil"
	"github.com/kjannette/trahn-gridcore/internal/models"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

var ErrUnsupportedPair = errors.New("unsupported pair")

// coinIDs maps base symbols to CoinGecko coin ids.
var coinIDs = map[string]string{
	"ETH":   "ethereum",
	"WETH":  "weth",
	"BTC":   "bitcoin",
	"WBTC":  "wrapped-bitcoin",
	"SOL":   "solana",
	"ARB":   "arbitrum",
	"OP":    "optimism",
	"MATIC": "matic-network",
	"POL":   "polygon-ecosystem-token",
	"BNB":   "binancecoin",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"AAVE":  "aave",
}

// vsCurrencies maps quote symbols to CoinGecko vs_currency codes. Dollar stablecoins
// are priced in usd.
var vsCurrencies = map[string]string{
	"USD":  "usd",
	"USDC": "usd",
	"USDT": "usd",
	"DAI":  "usd",
	"EUR":  "eur",
	"ETH":  "eth",
	"BTC":  "btc",
}

type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      httputil.RetryConfig
	now        func() time.Time
}

type CoinGeckoOption func(*CoinGeckoClient)

func WithBaseURL(u string) CoinGeckoOption {
	return func(c *CoinGeckoClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKey sends the demo API key header on every request.
func WithAPIKey(key string) CoinGeckoOption {
	return func(c *CoinGeckoClient) { c.apiKey = key }
}

func WithRetry(r httputil.RetryConfig) CoinGeckoOption {
	return func(c *CoinGeckoClient) { c.retry = r }
}

func NewCoinGeckoClient(opts ...CoinGeckoOption) *CoinGeckoClient {
	c := &CoinGeckoClient{
		baseURL:    DefaultCoinGeckoURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Supports reports whether pair can be priced.
func (c *CoinGeckoClient) Supports(pair string) bool {
	_, _, err := resolvePair(pair)
	return err == nil
}

func resolvePair(pair string) (id, vs string, err error) {
	base, quote, err := models.SplitPair(pair)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnsupportedPair, err)
	}
	id, ok := coinIDs[base]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown base asset %s", ErrUnsupportedPair, base)
	}
	vs, ok = vsCurrencies[quote]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown quote asset %s", ErrUnsupportedPair, quote)
	}
	return id, vs, nil
}

// FetchPrice returns the latest price and 24h volume for pair, e.g. "ETH/USDC".
func (c *CoinGeckoClient) FetchPrice(ctx context.Context, pair string) (*models.PriceSample, error) {
	id, vs, err := resolvePair(pair)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", vs)
	q.Set("include_24hr_vol", "true")
	q.Set("include_last_updated_at", "true")
	endpoint := c.baseURL + "/simple/price?" + q.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch %s: %w", pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned status %d for %s", resp.StatusCode, pair)
	}

	var data map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", pair, err)
	}

	quote, ok := data[id]
	if !ok {
		return nil, fmt.Errorf("coingecko response missing %s", id)
	}
	price := quote[vs]
	if price <= 0 {
		return nil, fmt.Errorf("invalid price for %s: %f", pair, price)
	}

	ts := c.now()
	if updated := quote["last_updated_at"]; updated > 0 {
		ts = time.Unix(int64(updated), 0)
	}
	return &models.PriceSample{
		Pair:      models.NormalizePair(pair),
		Price:     price,
		Volume24h: quote[vs+"_24h_vol"],
		Timestamp: ts,
		Source:    "coingecko",
	}, nil
}
