package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/alvarorichard/9anime-dl/internal/adblock"
)

const (
	EnvPrefix = "ANIDL"

	DefaultPlayerReferer = "https://filemoon.sx/"
)

type Config struct {
	Debug     bool   `mapstructure:"debug"`
	OutputDir string `mapstructure:"output_dir"`
	Browser   struct {
		Engine          string        `mapstructure:"engine"` // playwright or rod
		Headless        bool          `mapstructure:"headless"`
		ExtensionSettle time.Duration `mapstructure:"extension_settle"`
		PageSettle      time.Duration `mapstructure:"page_settle"`
	} `mapstructure:"browser"`
	Site struct {
		Provider      string `mapstructure:"provider"`
		PlayerReferer string `mapstructure:"player_referer"`
	} `mapstructure:"site"`
	Wait struct {
		SettleTimeout time.Duration `mapstructure:"settle_timeout"`
		IframeTimeout time.Duration `mapstructure:"iframe_timeout"` // 0 waits forever
	} `mapstructure:"wait"`
	Download struct {
		Engine                   string        `mapstructure:"engine"` // ytdlp or native
		Container                string        `mapstructure:"container"`
		Retries                  int           `mapstructure:"retries"`
		FragmentRetries          int           `mapstructure:"fragment_retries"`
		RetrySleep               time.Duration `mapstructure:"retry_sleep"`
		SkipExisting             bool          `mapstructure:"skip_existing"`
		SkipUnavailableFragments bool          `mapstructure:"skip_unavailable_fragments"`
	} `mapstructure:"download"`
	Adblock struct {
		ReleaseURL string `mapstructure:"release_url"`
	} `mapstructure:"adblock"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("output_dir", ".")

	v.SetDefault("browser.engine", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.extension_settle", "3s")
	v.SetDefault("browser.page_settle", "1s")

	v.SetDefault("site.provider", "Filemoon")
	v.SetDefault("site.player_referer", DefaultPlayerReferer)

	v.SetDefault("wait.settle_timeout", "30s")
	v.SetDefault("wait.iframe_timeout", "2m")

	v.SetDefault("download.engine", "ytdlp")
	v.SetDefault("download.container", "mp4")
	v.SetDefault("download.retries", 30)
	v.SetDefault("download.fragment_retries", 30)
	v.SetDefault("download.retry_sleep", "1s")
	v.SetDefault("download.skip_existing", true)
	v.SetDefault("download.skip_unavailable_fragments", false)

	v.SetDefault("adblock.release_url", adblock.DefaultReleaseURL)
}

// Load reads config.yaml from the given directories (the working directory
// when none are given), then applies ANIDL_* environment overrides. A missing
// file is not an error.
func Load(dirs ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	switch c.Browser.Engine {
	case "playwright", "rod":
	default:
		problems = append(problems, fmt.Sprintf("browser.engine must be playwright or rod, got %q", c.Browser.Engine))
	}
	switch c.Download.Engine {
	case "ytdlp", "native":
	default:
		problems = append(problems, fmt.Sprintf("download.engine must be ytdlp or native, got %q", c.Download.Engine))
	}
	if c.Site.Provider == "" {
		problems = append(problems, "site.provider is empty")
	}
	if strings.TrimSpace(c.Download.Container) == "" {
		problems = append(problems, "download.container is empty")
	}
	if c.Download.Retries < 0 || c.Download.FragmentRetries < 0 {
		problems = append(problems, "download retries must not be negative")
	}
	for key, d := range map[string]time.Duration{
		"browser.extension_settle": c.Browser.ExtensionSettle,
		"browser.page_settle":      c.Browser.PageSettle,
		"wait.settle_timeout":      c.Wait.SettleTimeout,
		"wait.iframe_timeout":      c.Wait.IframeTimeout,
		"download.retry_sleep":     c.Download.RetrySleep,
	} {
		if d < 0 {
			problems = append(problems, key+" must not be negative")
		}
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
