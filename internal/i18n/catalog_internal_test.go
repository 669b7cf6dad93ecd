// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RejectsIncompleteCatalog(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, Init()) })

	fsys := fstest.MapFS{
		"translations/active.en.toml": {Data: []byte("app_name = \"Authflow\"\nflash_logged_out = \"Bye\"\nflash_welcome = \"Hi\"\n")},
		"translations/active.de.toml": {Data: []byte("app_name = \"Authflow\"\n")},
	}

	err := load(fsys)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "translations/active.de.toml")
	assert.Contains(t, err.Error(), "flash_logged_out, flash_welcome")
}

func TestLoad_RequiresEnglish(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, Init()) })

	fsys := fstest.MapFS{
		"translations/active.de.toml": {Data: []byte("app_name = \"Authflow\"\n")},
	}

	require.Error(t, load(fsys))
}

func TestEmbeddedCatalogsAreComplete(t *testing.T) {
	require.NoError(t, Init())

	assert.Len(t, Languages(), 2)
}

func TestMissingKeys(t *testing.T) {
	base := map[string]any{"a": "A", "b": "B", "c": map[string]any{"one": "C", "other": "Cs"}}

	assert.Empty(t, missingKeys(base, base))
	assert.Equal(t, []string{"b", "c"}, missingKeys(base, map[string]any{"a": "x"}))
}
