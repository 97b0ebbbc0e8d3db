package scraper

import (
	"fmt"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// UI Automation control type identifiers.
const (
	ControlButton      = 50000
	ControlCheckBox    = 50002
	ControlComboBox    = 50003
	ControlEdit        = 50004
	ControlHyperlink   = 50005
	ControlRadioButton = 50013
	ControlText        = 50020
)

var typeMap = map[int]schemas.ObjectType{
	ControlButton:      schemas.ObjectButton,
	ControlRadioButton: schemas.ObjectButton,
	ControlCheckBox:    schemas.ObjectButton,
	ControlEdit:        schemas.ObjectTextBox,
	ControlComboBox:    schemas.ObjectComboBox,
	ControlHyperlink:   schemas.ObjectLink,
	ControlText:        schemas.ObjectStatic,
}

// Element is a node of the tree returned by the scraping agent. Coordinates
// are absolute (left, top, right, bottom).
type Element struct {
	Text        string    `json:"text"`
	Type        int       `json:"type"`
	Coordinates [4]int    `json:"coordinates"`
	Frame       [4]int    `json:"frame_coordinates"`
	Clickable   bool      `json:"clickable"`
	Toggled     *bool     `json:"toggled,omitempty"`
	Items       []string  `json:"items,omitempty"`
	Children    []Element `json:"children,omitempty"`
}

func rectOf(c [4]int) schemas.Rect {
	return schemas.NewRect(c[0], c[1], c[2], c[3])
}

// windowRect trims the window borders, estimated as half the difference
// between the window and its frame widths.
func windowRect(window, frame [4]int) (schemas.Rect, error) {
	border := ((window[2] - window[0]) - (frame[2] - frame[0])) / 2
	return validRect(schemas.NewRect(window[0]+border, window[1]+border, window[2]-border, window[3]-border))
}

func validRect(r schemas.Rect) (schemas.Rect, error) {
	if r.Left < 0 || r.Top < 0 || r.Right < 0 || r.Bottom < 0 || r.Empty() {
		return schemas.Rect{}, fmt.Errorf("%w: %s", schemas.ErrWindowNotFound, r)
	}
	return r, nil
}

// Flatten converts the scraped tree rooted at root into a ScrapedWindow.
// Children are clipped to the window and made relative to it. Only
// clickable children of a known type with a positive area are kept, and
// combo box children are never descended into.
func Flatten(root Element) (schemas.ScrapedWindow, error) {
	window, err := windowRect(root.Coordinates, root.Frame)
	if err != nil {
		return schemas.ScrapedWindow{}, err
	}
	var objects []schemas.ScrapedObject
	for _, child := range root.Children {
		objects = collect(child, window, objects)
	}
	return schemas.ScrapedWindow{Title: root.Text, Rect: window, Objects: objects}, nil
}

func collect(e Element, window schemas.Rect, objects []schemas.ScrapedObject) []schemas.ScrapedObject {
	if e.Type != ControlComboBox {
		for _, child := range e.Children {
			objects = collect(child, window, objects)
		}
	}

	clipped, err := validRect(rectOf(e.Coordinates).Clip(window))
	if err != nil {
		return objects
	}
	rel := clipped.Relative(window)
	kind, known := typeMap[e.Type]
	if !known || !e.Clickable || usableArea(rel) <= 0 {
		return objects
	}

	obj := schemas.ScrapedObject{Type: kind, Text: e.Text, Rect: rel, Items: e.Items}
	if e.Toggled != nil {
		obj.Toggled = *e.Toggled
	}
	return append(objects, obj)
}

// usableArea excludes the border pixels, so one pixel wide elements have no
// area.
func usableArea(r schemas.Rect) int {
	return (r.Width() - 1) * (r.Height() - 1)
}
