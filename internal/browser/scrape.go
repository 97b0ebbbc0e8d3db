package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// scrapeScript lists the visible interactive elements of the document with
// their viewport rectangles.
const scrapeScript = `(() => {
  const visible = el => {
    const s = getComputedStyle(el);
    return s.visibility !== 'hidden' && s.display !== 'none';
  };
  const kind = el => {
    const tag = el.tagName.toLowerCase();
    const type = (el.getAttribute('type') || '').toLowerCase();
    if (tag === 'a' && el.hasAttribute('href')) return 'link';
    if (tag === 'button') return 'button';
    if (tag === 'select') return 'combobox';
    if (tag === 'textarea') return 'textbox';
    if (tag === 'input') {
      if (['button', 'submit', 'reset', 'checkbox', 'radio'].includes(type)) return 'button';
      if (type === 'hidden') return '';
      return 'textbox';
    }
    if (/^h[1-6]$|^p$|^label$/.test(tag)) return 'static';
    return '';
  };
  const objects = [];
  for (const el of document.querySelectorAll('a, button, select, textarea, input, h1, h2, h3, h4, h5, h6, p, label')) {
    const k = kind(el);
    if (!k || !visible(el)) continue;
    const r = el.getBoundingClientRect();
    const text = (el.innerText || el.value || el.getAttribute('aria-label') || el.title || '').trim();
    const obj = {kind: k, text: text, rect: [Math.round(r.left), Math.round(r.top), Math.round(r.right), Math.round(r.bottom)]};
    if (el.type === 'checkbox' || el.type === 'radio') obj.toggled = el.checked;
    if (k === 'combobox') obj.items = Array.from(el.options).map(o => o.text);
    objects.push(obj);
  }
  return {title: document.title, width: window.innerWidth, height: window.innerHeight, objects: objects};
})()`

type pageObject struct {
	Kind    string   `json:"kind"`
	Text    string   `json:"text"`
	Rect    [4]int   `json:"rect"`
	Toggled bool     `json:"toggled"`
	Items   []string `json:"items"`
}

type pageScrape struct {
	Title   string       `json:"title"`
	Width   int          `json:"width"`
	Height  int          `json:"height"`
	Objects []pageObject `json:"objects"`
}

var pageKinds = map[string]schemas.ObjectType{
	"button":   schemas.ObjectButton,
	"textbox":  schemas.ObjectTextBox,
	"combobox": schemas.ObjectComboBox,
	"link":     schemas.ObjectLink,
	"static":   schemas.ObjectStatic,
}

// ScrapeWindow lists the interactive elements visible in the viewport.
func (d *Device) ScrapeWindow(ctx context.Context) (schemas.ScrapedWindow, error) {
	var ps pageScrape
	if err := d.run(ctx, chromedp.Evaluate(scrapeScript, &ps)); err != nil {
		return schemas.ScrapedWindow{}, fmt.Errorf("failed to scrape page: %w", err)
	}
	return ps.window()
}

// window converts the page scrape. Elements scrolled out of the viewport
// are dropped and the rest clipped to it.
func (ps pageScrape) window() (schemas.ScrapedWindow, error) {
	viewport := schemas.NewRect(0, 0, ps.Width, ps.Height)
	if viewport.Empty() {
		return schemas.ScrapedWindow{}, fmt.Errorf("%w: empty viewport", schemas.ErrWindowNotFound)
	}
	w := schemas.ScrapedWindow{Title: ps.Title + titleSuffix, Rect: viewport}
	for _, o := range ps.Objects {
		kind, ok := pageKinds[o.Kind]
		if !ok {
			continue
		}
		r := schemas.NewRect(o.Rect[0], o.Rect[1], o.Rect[2], o.Rect[3]).Clip(viewport)
		if r.Empty() {
			continue
		}
		w.Objects = append(w.Objects, schemas.ScrapedObject{
			Type:    kind,
			Text:    strings.Join(strings.Fields(o.Text), " "),
			Rect:    r,
			Toggled: o.Toggled,
			Items:   o.Items,
		})
	}
	return w, nil
}
