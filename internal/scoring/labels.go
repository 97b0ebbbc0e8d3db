package scoring

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
)

// Labels lists phrases matched case-insensitively against action text.
type Labels struct {
	// Blacklist phrases mark actions that should never be performed.
	Blacklist []string `toml:"blacklist" yaml:"blacklist"`
	// Graylist phrases mark actions that are not worth performing.
	Graylist []string `toml:"graylist" yaml:"graylist"`
}

// DefaultLabels suits English installers.
func DefaultLabels() Labels {
	return Labels{
		Blacklist: []string{
			"back", "cancel", "previous", "close",
			"minimize", "maximize",
			"down", "up", "left", "right",
			"print", "home",
		},
		Graylist: []string{"do not accept", "new folder"},
	}
}

// LoadLabels reads a TOML file with blacklist and graylist arrays. Lists
// missing from the file keep their default.
func LoadLabels(path string) (Labels, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Labels{}, fmt.Errorf("invalid labels path %q: %w", path, err)
	}
	defaults := DefaultLabels()
	var labels Labels
	meta, err := toml.DecodeFile(expanded, &labels)
	if err != nil {
		return Labels{}, fmt.Errorf("failed to decode labels file %s: %w", expanded, err)
	}
	if !meta.IsDefined("blacklist") {
		labels.Blacklist = defaults.Blacklist
	}
	if !meta.IsDefined("graylist") {
		labels.Graylist = defaults.Graylist
	}
	return labels, nil
}

// Blacklisted reports whether text contains a blacklisted phrase.
func (l Labels) Blacklisted(text string) bool { return containsAny(text, l.Blacklist) }

// Graylisted reports whether text contains a graylisted phrase.
func (l Labels) Graylisted(text string) bool { return containsAny(text, l.Graylist) }

func containsAny(text string, phrases []string) bool {
	text = strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
