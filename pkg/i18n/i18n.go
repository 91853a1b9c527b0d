// Package i18n holds the site's translation catalogs and picks a locale for
// each request.
package i18n

import (
	"embed"
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var files embed.FS

// Catalog is an immutable set of flattened message tables, one per locale.
type Catalog struct {
	defaultLocale string
	locales       []string
	messages      map[string]map[string]string
	printers      map[string]*message.Printer
	matcher       language.Matcher
}

// Load reads the embedded catalogs of locales. defaultLocale must be one of
// them; missing keys in other locales fall back to it.
func Load(locales []string, defaultLocale string) (*Catalog, error) {
	c := &Catalog{
		defaultLocale: defaultLocale,
		messages:      make(map[string]map[string]string, len(locales)),
		printers:      make(map[string]*message.Printer, len(locales)),
	}

	// The matcher falls back to its first tag, so the default goes first.
	ordered := []string{defaultLocale}
	for _, l := range locales {
		if l != defaultLocale {
			ordered = append(ordered, l)
		}
	}

	tags := make([]language.Tag, 0, len(ordered))
	for _, l := range ordered {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", l, err)
		}
		raw, err := files.ReadFile("locales/" + l + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("no catalog for locale %q: %w", l, err)
		}
		var tree map[string]interface{}
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse catalog %s: %w", l, err)
		}
		flat := make(map[string]string)
		flatten("", tree, flat)

		c.messages[l] = flat
		c.printers[l] = message.NewPrinter(tag)
		tags = append(tags, tag)
	}
	c.locales = ordered
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// flatten turns nested maps into dotted keys.
func flatten(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case nil:
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// T translates key for locale. Lookups fall back to the default locale and
// then to the key itself. With args the message is used as a format string,
// numbers formatted for the locale.
func (c *Catalog) T(locale, key string, args ...interface{}) string {
	msg, ok := c.messages[locale][key]
	if !ok {
		msg, ok = c.messages[c.defaultLocale][key]
		locale = c.defaultLocale
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return c.printers[locale].Sprintf(msg, args...)
}

// Has reports whether key exists in the default catalog.
func (c *Catalog) Has(key string) bool {
	_, ok := c.messages[c.defaultLocale][key]
	return ok
}

// Negotiate picks the best supported locale for an Accept-Language header.
func (c *Catalog) Negotiate(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.defaultLocale
	}
	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return c.defaultLocale
	}
	return c.locales[index]
}

// Supported reports whether locale has a catalog.
func (c *Catalog) Supported(locale string) bool {
	_, ok := c.messages[locale]
	return ok
}

// Default returns the default locale.
func (c *Catalog) Default() string { return c.defaultLocale }

// Locales returns the supported locales, sorted.
func (c *Catalog) Locales() []string {
	out := append([]string(nil), c.locales...)
	sort.Strings(out)
	return out
}
