// Package catalog loads the required channels and movie codes that the bot is
// deployed with.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tg_movie_gate_bot/internal/domain"
)

//go:embed default.yaml
var defaultDocument []byte

// Catalog is the static deployment data: who must be joined and what can be
// requested.
type Catalog struct {
	Channels []domain.Channel `yaml:"channels"`
	Movies   domain.Catalog   `yaml:"movies"`
}

// Default returns the catalog compiled into the binary.
func Default() (Catalog, error) {
	return Parse(defaultDocument)
}

// Load reads the catalog from path, or the built-in one when path is empty.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}

	return cat, nil
}

// Validate checks the channel list and the code map.
func (c Catalog) Validate() error {
	if len(c.Channels) == 0 {
		return errors.New("catalog: at least one channel is required")
	}

	seen := make(map[int64]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.ID == 0 {
			return fmt.Errorf("catalog: channel %d has no id", i)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("catalog: channel %d is listed twice", ch.ID)
		}
		seen[ch.ID] = struct{}{}

		if strings.TrimSpace(ch.InviteLink) == "" {
			return fmt.Errorf("catalog: channel %d has no invite link", ch.ID)
		}
	}

	if len(c.Movies) == 0 {
		return errors.New("catalog: at least one movie is required")
	}

	for code, ref := range c.Movies {
		if strings.TrimSpace(code) == "" || strings.TrimSpace(code) != code {
			return fmt.Errorf("catalog: code %q must be non-empty without surrounding spaces", code)
		}
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("catalog: code %s has no file reference", code)
		}
	}

	return nil
}
