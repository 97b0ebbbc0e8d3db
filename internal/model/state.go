package model

import (
	"image"
	"image/draw"
	"strings"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// Window is the observed foreground window.
type Window struct {
	Title string
	// Text joins the static labels of the window, one per line.
	Text string
	// Rect is the window position on screen.
	Rect  schemas.Rect
	Image image.Image
}

// State is one observation of the application under exploration. States are
// compared through the equivalence engine only.
type State struct {
	Window  Window
	Actions []Action
	Load    schemas.Load
	// Busy is set when the device load exceeded the tolerance while observing.
	Busy    bool
	Scraped schemas.ScrapedWindow

	snapshot schemas.SnapshotToken
}

// NewState assembles a State from a scraped window and the image of the
// window. The image must already be cropped to the window.
func NewState(scraped schemas.ScrapedWindow, img image.Image, load schemas.Load, busy bool) *State {
	var labels []string
	actions := make([]Action, 0, len(scraped.Objects))
	for _, obj := range scraped.Objects {
		if obj.Type == schemas.ObjectStatic {
			labels = append(labels, obj.Text)
			continue
		}
		if a := NewAction(obj, scraped.Rect); a != nil {
			actions = append(actions, a)
		}
	}
	return &State{
		Window: Window{
			Title: scraped.Title,
			Text:  strings.Join(labels, "\n"),
			Rect:  scraped.Rect,
			Image: img,
		},
		Actions: actions,
		Load:    load,
		Busy:    busy,
		Scraped: scraped,
	}
}

func (s *State) String() string { return s.Window.Title }

// Snapshot returns the device snapshot taken on this state, if any.
func (s *State) Snapshot() schemas.SnapshotToken { return s.snapshot }

// SetSnapshot records the device snapshot taken while this state was shown.
func (s *State) SetSnapshot(token schemas.SnapshotToken) { s.snapshot = token }

// ActionImage crops the window image to the action's bounding box. It returns
// nil when the state carries no image.
func (s *State) ActionImage(a Action) image.Image {
	if s.Window.Image == nil {
		return nil
	}
	return Crop(s.Window.Image, a.Rect().Image().Add(s.Window.Image.Bounds().Min))
}

// Crop copies the part of img inside r into a new image whose bounds start at
// the origin.
func Crop(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
