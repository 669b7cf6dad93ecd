// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package i18n translates user-facing text. Every catalog must define the
// same message IDs as the English one, so a missing translation fails at
// startup instead of showing a raw ID in a flash message or email.
package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

const baseCatalog = "translations/active.en.toml"

var (
	bundle  *i18n.Bundle
	matcher language.Matcher
)

type localeContextKey struct{}
type localizerContextKey struct{}

// Init loads every embedded catalog and checks that each one is complete.
func Init() error {
	return load(translationFS)
}

func load(fsys fs.FS) error {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(fsys, "translations/active.*.toml")
	if err != nil {
		return err
	}

	catalogs := make(map[string]map[string]any, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return err
		}
		if _, err := b.ParseMessageFileBytes(data, file); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		var messages map[string]any
		if err := toml.Unmarshal(data, &messages); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		catalogs[file] = messages
	}

	base, ok := catalogs[baseCatalog]
	if !ok {
		return fmt.Errorf("%s not found", baseCatalog)
	}
	for file, messages := range catalogs {
		if missing := missingKeys(base, messages); len(missing) > 0 {
			return fmt.Errorf("%s: missing messages: %s", file, strings.Join(missing, ", "))
		}
	}

	bundle = b
	matcher = language.NewMatcher(b.LanguageTags())
	return nil
}

// missingKeys lists the message IDs of base that other does not define.
func missingKeys(base, other map[string]any) []string {
	var missing []string
	for id := range base {
		if _, ok := other[id]; !ok {
			missing = append(missing, id)
		}
	}
	slices.Sort(missing)
	return missing
}

// Languages returns the loaded languages, English first.
func Languages() []language.Tag {
	if bundle == nil {
		return []language.Tag{language.English}
	}
	return bundle.LanguageTags()
}

// WithLocale adds the locale to the context.
func WithLocale(ctx context.Context, lang language.Tag) context.Context {
	locale := lang.String()
	ctx = context.WithValue(ctx, localeContextKey{}, locale)
	if bundle == nil {
		return ctx
	}
	localizer := i18n.NewLocalizer(bundle, locale)
	return context.WithValue(ctx, localizerContextKey{}, localizer)
}

// GetLocale returns the current locale from context.
func GetLocale(ctx context.Context) string {
	if locale, ok := ctx.Value(localeContextKey{}).(string); ok {
		return locale
	}
	return "en"
}

// T translates a message by ID. Unknown IDs come back unchanged.
func T(ctx context.Context, messageID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: messageID})
}

// TData translates a message with template data.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
}

// TCount translates a message whose wording depends on count, such as the
// attempts left before a lockout. data may be nil; Count is always set.
func TCount(ctx context.Context, messageID string, count int, data map[string]any) string {
	merged := make(map[string]any, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["Count"] = count
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    messageID,
		PluralCount:  count,
		TemplateData: merged,
	})
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	localizer := getLocalizer(ctx)
	if localizer == nil {
		return cfg.MessageID
	}
	msg, err := localizer.Localize(cfg)
	if err != nil {
		return cfg.MessageID
	}
	return msg
}

// MatchLanguage picks the best loaded language for an Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	if matcher == nil {
		return language.English
	}
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	return tag
}

func getLocalizer(ctx context.Context) *i18n.Localizer {
	if localizer, ok := ctx.Value(localizerContextKey{}).(*i18n.Localizer); ok {
		return localizer
	}
	if bundle == nil {
		return nil
	}
	return i18n.NewLocalizer(bundle, "en")
}
