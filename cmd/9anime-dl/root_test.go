package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/9anime-dl/internal/config"
	"github.com/alvarorichard/9anime-dl/internal/scraper"
	"github.com/alvarorichard/9anime-dl/internal/version"
)

func TestRootCommandRequiresURL(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no url", args: []string{}},
		{name: "two urls", args: []string{"https://a.example/watch/x", "https://a.example/watch/y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.Execute()

			require.Error(t, err)
			assert.Contains(t, err.Error(), "accepts 1 arg(s)")
		})
	}
}

func TestRootCommandVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--version"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.String()+"\n", out.String())
}

func TestScraperOptionsFromConfig(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	cfg.Site.Provider = "Vidstream"
	cfg.Wait.SettleTimeout = 10 * time.Second
	cfg.Wait.IframeTimeout = 0

	sub := scraperOptions(cfg, false)
	dub := scraperOptions(cfg, true)

	assert.Equal(t, scraper.Sub, sub.Kind)
	assert.Equal(t, scraper.Dub, dub.Kind)
	assert.Equal(t, "Vidstream", sub.Provider)
	assert.Equal(t, 10*time.Second, sub.Settle.Timeout)
	assert.Equal(t, time.Duration(0), sub.Frame.Timeout)
	assert.Equal(t, scraper.DefaultSelectors(), sub.Selectors)
}
