// Package scraper talks to the GUI scraping agent running inside the guest
// operating system.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// ErrScrapeFailed is returned when the agent reports a failed scrape.
var ErrScrapeFailed = errors.New("scrape failed")

// maxResponseSize bounds the agent response read into memory.
const maxResponseSize = 32 << 20

// Config addresses the scraping agent.
type Config struct {
	Host string
	Port int
	// Recursive scrapes return more elements but take longer.
	Recursive bool
	// Timeout is the time the agent may spend scraping.
	Timeout time.Duration
	// MinInterval spaces consecutive requests to a slow agent. Zero disables
	// throttling.
	MinInterval time.Duration
}

// response is the envelope returned by the agent.
type response struct {
	Status string          `json:"status"`
	Type   string          `json:"type"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Client implements schemas.WindowScraper over the agent HTTP protocol.
type Client struct {
	endpoint   string
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBody    int64
	logger     *zap.Logger
}

// New creates a client for the agent at cfg.Host:cfg.Port.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	// Leave room for the agent to answer after its own timeout.
	httpClient := &http.Client{Timeout: cfg.Timeout + 10*time.Second}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Client{
		endpoint:   "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)) + "/",
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		maxBody:    maxResponseSize,
		logger:     logger.Named("scraper"),
	}
}

// ScrapeWindow asks the agent for the foreground window.
func (c *Client) ScrapeWindow(ctx context.Context) (schemas.ScrapedWindow, error) {
	root, kind, err := c.scrape(ctx)
	if err != nil {
		return schemas.ScrapedWindow{}, err
	}
	window, err := Flatten(root)
	if err != nil {
		return schemas.ScrapedWindow{}, err
	}
	c.logger.Debug("Window scraped",
		zap.String("scraper", kind),
		zap.String("title", window.Title),
		zap.Int("objects", len(window.Objects)))
	return window, nil
}

func (c *Client) scrape(ctx context.Context) (Element, string, error) {
	q := url.Values{}
	q.Set("recursive", "0")
	if c.cfg.Recursive {
		q.Set("recursive", "1")
	}
	q.Set("timeout", strconv.Itoa(int(c.cfg.Timeout.Seconds())))

	if err := c.limiter.Wait(ctx); err != nil {
		return Element{}, "", fmt.Errorf("scrape throttled: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Element{}, "", fmt.Errorf("failed to build scrape request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Element{}, "", fmt.Errorf("failed to reach scraping agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Element{}, "", fmt.Errorf("scraping agent returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return Element{}, "", fmt.Errorf("failed to read scrape response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return Element{}, "", fmt.Errorf("scrape response exceeds %d bytes", c.maxBody)
	}
	return Decode(body)
}

// Decode parses an agent response, returning the window tree and the name of
// the scraper that produced it.
func Decode(body []byte) (Element, string, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return Element{}, "", fmt.Errorf("failed to decode scrape response: %w", err)
	}
	if r.Status != "success" {
		return Element{}, r.Type, fmt.Errorf("%w: %s", ErrScrapeFailed, r.Error)
	}
	var root Element
	if err := json.Unmarshal(r.Result, &root); err != nil {
		return Element{}, r.Type, fmt.Errorf("failed to decode scraped window: %w", err)
	}
	return root, r.Type, nil
}
