// Package i18n renders user-facing bot text from embedded locale files.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Translator resolves message keys for a single language.
type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	filePath := path.Join("locales", lang+".yaml")

	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("read translation file %s: %w", filePath, err)
	}

	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("parse translation file %s: %w", filePath, err)
	}

	return &Translator{translations: translations}, nil
}

// T formats the message for key, returning the key itself when unknown.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
