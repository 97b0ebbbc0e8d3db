package model

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
	"github.com/xkilldash9x/mrmurphy/internal/humanoid"
)

// Kind discriminates the closed set of Action variants.
type Kind int

const (
	KindButton Kind = iota
	KindTextBox
	KindLink
	KindComboBox
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindTextBox:
		return "textbox"
	case KindLink:
		return "link"
	case KindComboBox:
		return "combobox"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Action is an interactive element of a State. The implementations are
// *Button, *TextBox, *Link and *ComboBox.
//
// Score is session-scoped bookkeeping owned by the scorer: it starts unset,
// is initialized once and then only decremented. It takes no part in Equal.
type Action interface {
	Kind() Kind
	Text() string
	// Rect is the element's bounding box relative to its window.
	Rect() schemas.Rect
	// ScreenRect is the bounding box in absolute screen coordinates.
	ScreenRect() schemas.Rect

	Score() (score int, ok bool)
	// InitScore sets the score if it is still unset and reports whether it did.
	InitScore(score int) bool
	// DecrementScore lowers a set score by one. It panics on an unset score.
	DecrementScore()

	// Equal reports element equality: same variant, same text and the same
	// variant specific discriminator.
	Equal(other Action) bool
	// Key is a string that is equal for exactly the actions Equal treats as
	// equal, usable as a multiset key.
	Key() string

	sealed()
}

// Clickable actions are performed with a single click.
type Clickable interface {
	Action
	Perform(ctx context.Context, h *humanoid.Humanoid) error
}

type actionBase struct {
	text   string
	rect   schemas.Rect
	window schemas.Rect

	score  int
	scored bool
}

func newBase(obj schemas.ScrapedObject, window schemas.Rect) actionBase {
	return actionBase{text: obj.Text, rect: obj.Rect, window: window}
}

func (a *actionBase) Text() string             { return a.text }
func (a *actionBase) Rect() schemas.Rect       { return a.rect }
func (a *actionBase) ScreenRect() schemas.Rect { return a.rect.Absolute(a.window) }
func (a *actionBase) sealed()                  {}

func (a *actionBase) Score() (int, bool) { return a.score, a.scored }

func (a *actionBase) InitScore(score int) bool {
	if a.scored {
		return false
	}
	a.score, a.scored = score, true
	return true
}

func (a *actionBase) DecrementScore() {
	if !a.scored {
		panic(fmt.Sprintf("model: decrementing unscored action %q", a.text))
	}
	a.score--
}

// click clicks inside the element then parks the cursor on the window's right
// border so the highlight does not follow the pointer.
func (a *actionBase) click(ctx context.Context, h *humanoid.Humanoid) error {
	screen := a.ScreenRect()
	if err := h.Click(ctx, screen); err != nil {
		return err
	}
	return h.ParkCursor(ctx, a.window.Right, screen.Bottom)
}

func key(kind Kind, text string) string {
	return kind.String() + "\x00" + text
}

// Button is a push button, checkbox or radio button.
type Button struct {
	actionBase
	// Toggled is set on ticked checkboxes and radio buttons.
	Toggled bool
}

func (b *Button) Kind() Kind { return KindButton }

func (b *Button) Equal(other Action) bool {
	o, ok := other.(*Button)
	return ok && b.text == o.text && b.Toggled == o.Toggled
}

func (b *Button) Key() string {
	return key(KindButton, b.text) + "\x00" + strconv.FormatBool(b.Toggled)
}

// Perform clicks the button.
func (b *Button) Perform(ctx context.Context, h *humanoid.Humanoid) error {
	return b.click(ctx, h)
}

func (b *Button) String() string { return fmt.Sprintf("Button(%q)", b.text) }

// TextBox is an editable text field.
type TextBox struct {
	actionBase
}

func (t *TextBox) Kind() Kind { return KindTextBox }

func (t *TextBox) Equal(other Action) bool {
	o, ok := other.(*TextBox)
	return ok && t.text == o.text
}

func (t *TextBox) Key() string { return key(KindTextBox, t.text) }

// Perform focuses the field and types text into it.
func (t *TextBox) Perform(ctx context.Context, h *humanoid.Humanoid, text string) error {
	if err := t.click(ctx, h); err != nil {
		return err
	}
	return h.Type(ctx, text)
}

func (t *TextBox) String() string { return fmt.Sprintf("TextBox(%q)", t.text) }

// Link is a hyperlink.
type Link struct {
	actionBase
}

func (l *Link) Kind() Kind { return KindLink }

func (l *Link) Equal(other Action) bool {
	o, ok := other.(*Link)
	return ok && l.text == o.text
}

func (l *Link) Key() string { return key(KindLink, l.text) }

// Perform clicks the link.
func (l *Link) Perform(ctx context.Context, h *humanoid.Humanoid) error {
	return l.click(ctx, h)
}

func (l *Link) String() string { return fmt.Sprintf("Link(%q)", l.text) }

// ComboBox is a drop-down list.
type ComboBox struct {
	actionBase
	Items []string
}

func (c *ComboBox) Kind() Kind { return KindComboBox }

func (c *ComboBox) Equal(other Action) bool {
	o, ok := other.(*ComboBox)
	return ok && c.text == o.text
}

func (c *ComboBox) Key() string { return key(KindComboBox, c.text) }

// Perform opens the list and moves the selection by offset items, down when
// positive and up when negative, then confirms.
func (c *ComboBox) Perform(ctx context.Context, h *humanoid.Humanoid, offset int) error {
	steps, dir := offset, schemas.KeyDown
	if offset < 0 {
		steps, dir = -offset, schemas.KeyUp
	}
	if steps > len(c.Items) {
		return fmt.Errorf("model: combobox offset %d out of range (%d items)", offset, len(c.Items))
	}
	if err := c.click(ctx, h); err != nil {
		return err
	}
	if err := h.PressRepeated(ctx, dir, steps); err != nil {
		return err
	}
	return h.Controller().Keyboard().Press(ctx, schemas.KeyReturn)
}

func (c *ComboBox) String() string { return fmt.Sprintf("ComboBox(%q)", c.text) }

// NewAction builds the Action for a scraped element of a window located at
// window on screen. Elements that are not interactive return nil.
func NewAction(obj schemas.ScrapedObject, window schemas.Rect) Action {
	base := newBase(obj, window)
	switch obj.Type {
	case schemas.ObjectButton:
		return &Button{actionBase: base, Toggled: obj.Toggled}
	case schemas.ObjectTextBox:
		return &TextBox{actionBase: base}
	case schemas.ObjectLink:
		return &Link{actionBase: base}
	case schemas.ObjectComboBox:
		return &ComboBox{actionBase: base, Items: append([]string(nil), obj.Items...)}
	default:
		return nil
	}
}
