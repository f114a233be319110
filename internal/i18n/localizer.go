package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// BaseLocale is the canonical source locale; every code must have a message
// here.
const BaseLocale = "en-US"

//go:embed locales/*.json
var embeddedLocaleFS embed.FS

// Localizer resolves stable error codes to user-facing messages for a
// requested locale. Core decision logic never sees these strings.
type Localizer struct {
	matcher  language.Matcher
	tags     []language.Tag
	locales  []string
	messages map[string]map[string]string
}

// NewLocalizer loads the catalogs embedded in this package.
func NewLocalizer() (*Localizer, error) {
	return LoadFromFS(embeddedLocaleFS)
}

// LoadFromFS loads locale catalogs from the provided filesystem. Each file
// locales/<locale>.json holds a flat code-to-message object.
func LoadFromFS(localeFS fs.FS) (*Localizer, error) {
	paths, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no locale catalogs found")
	}
	sort.Strings(paths)

	l := &Localizer{messages: map[string]map[string]string{}}

	for _, p := range paths {
		locale := strings.TrimSuffix(path.Base(p), ".json")
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: invalid locale: %w", p, err)
		}

		data, err := fs.ReadFile(localeFS, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		catalog := map[string]string{}
		if err := json.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}

		if locale == BaseLocale {
			// The matcher prefers earlier tags; the base locale is the
			// fallback for unmatched requests.
			l.tags = append([]language.Tag{tag}, l.tags...)
			l.locales = append([]string{locale}, l.locales...)
		} else {
			l.tags = append(l.tags, tag)
			l.locales = append(l.locales, locale)
		}
		l.messages[locale] = catalog
	}

	base, ok := l.messages[BaseLocale]
	if !ok {
		return nil, fmt.Errorf("missing base locale catalog %s", BaseLocale)
	}
	for locale, catalog := range l.messages {
		for code := range catalog {
			if _, ok := base[code]; !ok {
				return nil, fmt.Errorf("catalog %s has code %s absent from %s", locale, code, BaseLocale)
			}
		}
	}

	l.matcher = language.NewMatcher(l.tags)
	return l, nil
}

// Resolve returns the message for code in the best matching locale. The
// locale argument accepts an Accept-Language value; unknown locales fall
// back to the base catalog and unknown codes fall back to the code itself.
func (l *Localizer) Resolve(code, locale string) string {
	catalog := l.messages[BaseLocale]
	if locale != "" {
		if desired, _, err := language.ParseAcceptLanguage(locale); err == nil {
			if _, idx, conf := l.matcher.Match(desired...); conf > language.No {
				catalog = l.messages[l.locales[idx]]
			}
		}
	}

	if msg, ok := catalog[code]; ok {
		return msg
	}
	if msg, ok := l.messages[BaseLocale][code]; ok {
		return msg
	}
	return code
}
