// Package browser drives a Chromium tab as an exploration device. The page
// viewport plays the role of the screen and the document the role of the
// foreground window.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// Config describes the browser session.
type Config struct {
	// StartURL is loaded when the session starts.
	StartURL          string
	Headless          bool
	Width             int
	Height            int
	NavigationTimeout time.Duration
	// ExecPath overrides the Chromium binary lookup.
	ExecPath string
}

// DefaultConfig returns a headless 1280x800 session.
func DefaultConfig() Config {
	return Config{Headless: true, Width: 1280, Height: 800, NavigationTimeout: 60 * time.Second}
}

// Device implements schemas.Controller, schemas.Feedback and
// schemas.WindowScraper on top of a single browser tab.
type Device struct {
	cfg    Config
	logger *zap.Logger

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mu        sync.Mutex
	x, y      float64
	held      map[schemas.Key]bool
	snapshots map[schemas.SnapshotToken]string
	seq       int
}

// New launches the browser and loads cfg.StartURL.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = defaults.Width, defaults.Height
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaults.NavigationTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(cfg.Width, cfg.Height),
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	d := &Device{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		held:        make(map[schemas.Key]bool),
		snapshots:   make(map[schemas.SnapshotToken]string),
	}

	if err := d.run(ctx, chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height))); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	if cfg.StartURL != "" {
		if err := d.Navigate(ctx, cfg.StartURL); err != nil {
			d.Close()
			return nil, err
		}
	}
	d.logger.Info("Browser started", zap.String("url", cfg.StartURL), zap.Bool("headless", cfg.Headless))
	return d, nil
}

// Close terminates the browser.
func (d *Device) Close() {
	d.cancelTab()
	d.cancelAlloc()
}

func (d *Device) Mouse() schemas.Mouse       { return d }
func (d *Device) Keyboard() schemas.Keyboard { return d }
func (d *Device) State() schemas.DeviceState { return d }

// run executes actions on the tab while honouring the cancellation of ctx.
func (d *Device) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the document body.
func (d *Device) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	if err := d.run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, d.cfg.NavigationTimeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	d.logger.Debug("Navigated", zap.String("url", url))
	return nil
}

// -- DeviceState --

// Save records the current URL.
func (d *Device) Save(ctx context.Context) (schemas.SnapshotToken, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	token := schemas.SnapshotToken("url-" + strconv.Itoa(d.seq))
	d.snapshots[token] = url
	return token, nil
}

// Restore navigates back to the URL recorded under token.
func (d *Device) Restore(ctx context.Context, token schemas.SnapshotToken) error {
	d.mu.Lock()
	url, ok := d.snapshots[token]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown snapshot %q", token)
	}
	return d.Navigate(ctx, url)
}

// Discard forgets token.
func (d *Device) Discard(ctx context.Context, token schemas.SnapshotToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.snapshots, token)
	return nil
}
