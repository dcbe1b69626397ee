package bot

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

// Catalog holds the reply message templates. Templates are plain Sprintf
// format strings keyed by name.
type Catalog struct {
	messages map[string]string
}

// LoadCatalog parses the embedded message catalog.
func LoadCatalog() *Catalog {
	var messages map[string]string
	if err := yaml.Unmarshal(messagesYAML, &messages); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded messages.yaml: " + err.Error())
	}
	return &Catalog{messages: messages}
}

// Text returns the template for key, rendered with args. A missing key
// renders as the key itself so a typo is visible instead of silent.
func (c *Catalog) Text(key string, args ...any) string {
	tmpl, ok := c.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
