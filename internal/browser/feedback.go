package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// titleSuffix makes page titles recognisable as browser windows.
const titleSuffix = " - Chromium"

// Screenshot captures the viewport.
func (d *Device) Screenshot(ctx context.Context) (image.Image, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

const loadScript = `(() => {
  const pending = performance.getEntriesByType('resource').filter(e => e.responseEnd === 0).length;
  return {ready: document.readyState, pending: pending};
})()`

type pageLoad struct {
	Ready   string `json:"ready"`
	Pending int    `json:"pending"`
}

// Load reports network load while the document or its resources are still
// loading. CPU and disk are not observable from the page.
func (d *Device) Load(ctx context.Context) (schemas.Load, error) {
	var pl pageLoad
	if err := d.run(ctx, chromedp.Evaluate(loadScript, &pl)); err != nil {
		return schemas.Load{}, fmt.Errorf("failed to sample page load: %w", err)
	}
	return pl.load(), nil
}

func (pl pageLoad) load() schemas.Load {
	var l schemas.Load
	switch {
	case pl.Ready != "complete":
		l.Network = 1
	case pl.Pending > 0:
		l.Network = min(1, float64(pl.Pending)/10)
	}
	return l
}
