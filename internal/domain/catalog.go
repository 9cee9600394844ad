package domain

import "strings"

// Channel is a channel users must join before codes are accepted.
type Channel struct {
	ID         int64  `yaml:"id"`
	Name       string `yaml:"name"`
	InviteLink string `yaml:"link"`
}

// Label returns the name when set and falls back to the invite link.
func (c Channel) Label() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return c.InviteLink
}

// Catalog maps a short code to an opaque file reference understood by Telegram.
type Catalog map[string]string

// Lookup trims surrounding whitespace and matches the code exactly.
func (c Catalog) Lookup(text string) (code, fileRef string, ok bool) {
	code = strings.TrimSpace(text)
	if code == "" {
		return "", "", false
	}

	fileRef, ok = c[code]
	if !ok {
		return code, "", false
	}
	return code, fileRef, true
}
