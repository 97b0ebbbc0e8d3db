package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/mrmurphy/internal/model"
	"github.com/xkilldash9x/mrmurphy/internal/scoring"
)

const (
	PolicyExplorer     = "explorer"
	PolicyInstaller    = "installer"
	PolicyLinkFollower = "link-follower"
)

// Policy captures what differs between exploration strategies: which actions
// are candidates, how they are scored and which observations are unusable.
type Policy struct {
	Name      string
	Kinds     []model.Kind
	Heuristic scoring.Heuristic
	// OutOfFocus reports observations of a window other than the one under
	// exploration.
	OutOfFocus func(*model.State) bool
	// WaitBusy makes observations taken on a busy device unusable.
	WaitBusy bool

	MaxDepth     int
	Frequency    time.Duration
	FocusTimeout time.Duration
	BusyTimeout  time.Duration
}

// ExplorerPolicy clicks every button of a desktop application.
func ExplorerPolicy() Policy {
	return Policy{
		Name:         PolicyExplorer,
		Kinds:        []model.Kind{model.KindButton},
		Heuristic:    scoring.Plain(scoring.DefaultScore),
		OutOfFocus:   DesktopOutOfFocus,
		MaxDepth:     8,
		Frequency:    6 * time.Second,
		FocusTimeout: 30 * time.Second,
		BusyTimeout:  30 * time.Second,
	}
}

// InstallerPolicy drives setup wizards towards completion and waits for the
// device to settle between steps.
func InstallerPolicy(labels scoring.Labels) Policy {
	return Policy{
		Name:         PolicyInstaller,
		Kinds:        []model.Kind{model.KindButton},
		Heuristic:    scoring.Installer(scoring.DefaultScore, labels),
		OutOfFocus:   DesktopOutOfFocus,
		WaitBusy:     true,
		MaxDepth:     8,
		Frequency:    6 * time.Second,
		FocusTimeout: 30 * time.Second,
		BusyTimeout:  300 * time.Second,
	}
}

// LinkFollowerPolicy follows the links of a web browser.
func LinkFollowerPolicy() Policy {
	return Policy{
		Name:         PolicyLinkFollower,
		Kinds:        []model.Kind{model.KindLink},
		Heuristic:    scoring.Plain(scoring.DefaultScore),
		OutOfFocus:   BrowserOutOfFocus,
		MaxDepth:     6,
		Frequency:    10 * time.Second,
		FocusTimeout: 30 * time.Second,
		BusyTimeout:  30 * time.Second,
	}
}

// PolicyByName returns the named policy.
func PolicyByName(name string, labels scoring.Labels) (Policy, error) {
	switch name {
	case PolicyExplorer:
		return ExplorerPolicy(), nil
	case PolicyInstaller:
		return InstallerPolicy(labels), nil
	case PolicyLinkFollower:
		return LinkFollowerPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown exploration policy %q", name)
	}
}

// DesktopOutOfFocus recognises the Windows desktop and taskbar.
func DesktopOutOfFocus(s *model.State) bool {
	switch s.Window.Title {
	case "Program Manager":
		return len(s.Actions) == 0
	case "":
		var start, desktop bool
		for _, a := range s.Actions {
			switch strings.ToLower(a.Text()) {
			case "start":
				start = true
			case "show desktop":
				desktop = true
			}
		}
		return start && desktop
	}
	return false
}

var browsers = []string{"chrome", "chromium", "firefox", "internet explorer", "safari"}

// BrowserOutOfFocus reports windows that do not belong to a known browser.
func BrowserOutOfFocus(s *model.State) bool {
	title := strings.ToLower(s.Window.Title)
	for _, b := range browsers {
		if strings.Contains(title, b) {
			return false
		}
	}
	return true
}
