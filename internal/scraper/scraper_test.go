package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

const sampleResponse = `{
  "type": "windows_ui_automation",
  "status": "success",
  "result": {
    "text": "Setup - Example",
    "type": 50032,
    "coordinates": [96, 96, 504, 404],
    "frame_coordinates": [0, 0, 400, 300],
    "children": [
      {"text": "Next >", "type": 50000, "clickable": true, "coordinates": [400, 360, 480, 390]},
      {"text": "I accept", "type": 50013, "clickable": true, "toggled": true, "coordinates": [110, 200, 300, 220]},
      {"text": "Welcome", "type": 50020, "clickable": true, "coordinates": [110, 110, 400, 140]},
      {"text": "Language", "type": 50003, "clickable": true, "items": ["English", "Deutsch"],
       "coordinates": [110, 250, 300, 270],
       "children": [{"text": "Open", "type": 50000, "clickable": true, "coordinates": [280, 250, 300, 270]}]},
      {"text": "", "type": 50033, "clickable": false, "coordinates": [100, 100, 500, 400],
       "children": [
         {"text": "Help", "type": 50005, "clickable": true, "coordinates": [90, 380, 160, 420]},
         {"text": "Hidden", "type": 50000, "clickable": false, "coordinates": [200, 300, 260, 330]},
         {"text": "Sliver", "type": 50000, "clickable": true, "coordinates": [200, 300, 201, 330]}
       ]}
    ]
  }
}`

func TestFlatten(t *testing.T) {
	t.Parallel()
	root, kind, err := Decode([]byte(sampleResponse))
	require.NoError(t, err)
	assert.Equal(t, "windows_ui_automation", kind)

	window, err := Flatten(root)
	require.NoError(t, err)

	t.Run("should trim the window borders", func(t *testing.T) {
		assert.Equal(t, "Setup - Example", window.Title)
		assert.Equal(t, schemas.NewRect(100, 100, 500, 400), window.Rect)
	})

	t.Run("should keep clickable known elements relative to the window", func(t *testing.T) {
		expected := []schemas.ScrapedObject{
			{Type: schemas.ObjectButton, Text: "Next >", Rect: schemas.NewRect(300, 260, 380, 290)},
			{Type: schemas.ObjectButton, Text: "I accept", Rect: schemas.NewRect(10, 100, 200, 120), Toggled: true},
			{Type: schemas.ObjectStatic, Text: "Welcome", Rect: schemas.NewRect(10, 10, 300, 40)},
			{Type: schemas.ObjectComboBox, Text: "Language", Rect: schemas.NewRect(10, 150, 200, 170), Items: []string{"English", "Deutsch"}},
			{Type: schemas.ObjectLink, Text: "Help", Rect: schemas.NewRect(0, 280, 60, 300)},
		}
		if diff := cmp.Diff(expected, window.Objects); diff != "" {
			t.Errorf("unexpected objects (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject windows without area", func(t *testing.T) {
		_, err := Flatten(Element{Text: "Gone", Coordinates: [4]int{0, 0, 0, 0}})
		assert.ErrorIs(t, err, schemas.ErrWindowNotFound)
		_, err = Flatten(Element{Text: "Offscreen", Coordinates: [4]int{-32000, -32000, -31840, -31970}})
		assert.ErrorIs(t, err, schemas.ErrWindowNotFound)
	})
}

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("should surface agent failures", func(t *testing.T) {
		_, kind, err := Decode([]byte(`{"type": "winapi", "status": "failure", "error": "TimeoutError()"}`))
		assert.ErrorIs(t, err, ErrScrapeFailed)
		assert.Contains(t, err.Error(), "TimeoutError")
		assert.Equal(t, "winapi", kind)
	})

	t.Run("should reject malformed bodies", func(t *testing.T) {
		_, _, err := Decode([]byte(`<html>`))
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrScrapeFailed))
	})
}

func newAgent(t *testing.T, handler http.HandlerFunc) Config {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	host, port, found := strings.Cut(strings.TrimPrefix(server.URL, "http://"), ":")
	require.True(t, found)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return Config{Host: host, Port: p, Timeout: 5 * time.Second}
}

func TestClient(t *testing.T) {
	t.Parallel()

	t.Run("should scrape through the agent protocol", func(t *testing.T) {
		cfg := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1", r.URL.Query().Get("recursive"))
			assert.Equal(t, "5", r.URL.Query().Get("timeout"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(sampleResponse))
		})
		cfg.Recursive = true

		window, err := New(cfg, zaptest.NewLogger(t)).ScrapeWindow(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Setup - Example", window.Title)
		assert.Len(t, window.Objects, 5)
	})

	t.Run("should report HTTP errors", func(t *testing.T) {
		cfg := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := New(cfg, nil).ScrapeWindow(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("should honour context cancellation", func(t *testing.T) {
		cfg := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(sampleResponse))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(cfg, nil).ScrapeWindow(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("should refuse oversized responses", func(t *testing.T) {
		cfg := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(sampleResponse))
			_, _ = w.Write([]byte(strings.Repeat(" ", 4096)))
		})
		client := New(cfg, nil)
		client.maxBody = int64(len(sampleResponse))

		_, err := client.ScrapeWindow(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")

		client.maxBody = int64(len(sampleResponse)) + 4096
		_, err = client.ScrapeWindow(context.Background())
		assert.NoError(t, err)
	})

	t.Run("should space requests by the minimum interval", func(t *testing.T) {
		cfg := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(sampleResponse))
		})
		cfg.MinInterval = 50 * time.Millisecond
		client := New(cfg, nil)

		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := client.ScrapeWindow(context.Background())
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})
}

type fuzzChild struct {
	Text        string
	Type        uint8
	Coordinates [4]int16
	Clickable   bool
	Toggled     bool
}

type fuzzWindow struct {
	Title       string
	Coordinates [4]int16
	Frame       [4]int16
	Children    []fuzzChild
}

func widen(c [4]int16) [4]int {
	return [4]int{int(c[0]), int(c[1]), int(c[2]), int(c[3])}
}

// FuzzFlatten checks that every kept element lies inside the window.
func FuzzFlatten(f *testing.F) {
	f.Add([]byte(sampleResponse))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var fw fuzzWindow
		if err := consumer.GenerateStruct(&fw); err != nil {
			return
		}

		root := Element{Text: fw.Title, Coordinates: widen(fw.Coordinates), Frame: widen(fw.Frame)}
		for _, c := range fw.Children {
			toggled := c.Toggled
			root.Children = append(root.Children, Element{
				Text:        c.Text,
				Type:        ControlButton + int(c.Type%32),
				Coordinates: widen(c.Coordinates),
				Clickable:   c.Clickable,
				Toggled:     &toggled,
			})
		}

		window, err := Flatten(root)
		if err != nil {
			require.ErrorIs(t, err, schemas.ErrWindowNotFound)
			return
		}
		bounds := schemas.NewRect(0, 0, window.Rect.Width(), window.Rect.Height())
		for _, obj := range window.Objects {
			require.Equal(t, obj.Rect, obj.Rect.Clip(bounds), "object %q escapes the window", obj.Text)
			require.Positive(t, obj.Rect.Area())
		}
	})
}
