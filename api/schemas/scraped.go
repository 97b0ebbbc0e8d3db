package schemas

import "fmt"

// ObjectType classifies scraped window elements.
type ObjectType int

const (
	ObjectButton ObjectType = iota
	ObjectTextBox
	ObjectComboBox
	ObjectLink
	ObjectStatic
)

var objectTypeNames = map[ObjectType]string{
	ObjectButton:   "BUTTON",
	ObjectTextBox:  "TEXTBOX",
	ObjectComboBox: "COMBOBOX",
	ObjectLink:     "LINK",
	ObjectStatic:   "STATIC",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}

// ScrapedObject is one element of a scraped window. Rect is relative to the
// window.
type ScrapedObject struct {
	Type    ObjectType `json:"type"`
	Text    string     `json:"text"`
	Rect    Rect       `json:"rect"`
	Toggled bool       `json:"toggled,omitempty"`
	Items   []string   `json:"items,omitempty"`
}

// ScrapedWindow is the flattened element tree of the foreground window.
// Rect is in absolute screen coordinates.
type ScrapedWindow struct {
	Title   string          `json:"title"`
	Rect    Rect            `json:"rect"`
	Objects []ScrapedObject `json:"objects"`
}
