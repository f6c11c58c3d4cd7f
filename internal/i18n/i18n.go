// Package i18n localizes API messages from embedded JSON locale files.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundle   *i18n.Bundle
	matcher  language.Matcher
	fallback = language.English
)

// Init loads every embedded locale. lang becomes the fallback for requests
// that ask for nothing we support.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
	}

	bundle, fallback = b, tag
	// The bundle lists the default tag first, so an unmatched request resolves to it.
	matcher = language.NewMatcher(b.LanguageTags())
	slog.Debug("loaded locales", "languages", b.LanguageTags(), "default", tag)
	return nil
}

// Negotiate picks the supported language that best fits an Accept-Language
// header value, or the default language.
func Negotiate(acceptLanguage string) language.Tag {
	return negotiate(acceptLanguage, fallback)
}

func negotiate(acceptLanguage string, def language.Tag) language.Tag {
	if matcher == nil || acceptLanguage == "" {
		return def
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return def
	}
	tag, _, conf := matcher.Match(prefs...)
	if conf == language.No {
		return def
	}
	// Match may attach region extensions; locales are keyed by base language.
	base, _ := tag.Base()
	return language.Make(base.String())
}

// WithLanguage returns a context whose messages are rendered in tag.
func WithLanguage(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, ctxKey{}, i18n.NewLocalizer(bundle, tag.String(), fallback.String()))
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer)
	if !ok {
		loc = i18n.NewLocalizer(bundle, fallback.String())
	}
	s, err := loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message; the count is available as {{.Count}}.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}
