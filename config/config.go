package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string

	// Database configuration
	DatabaseURL string

	// Logging configuration
	LogDirectory  string
	LogOutputFile string
	LogErrorFile  string

	// HTTP client tuning
	HTTPClientTimeout time.Duration
	MaxIdleConns      int
	MaxConnsPerHost   int

	// Douyin upstream configuration
	DouyinDetailEndpoints []string
	DouyinItemInfoURL     string
	DouyinVideoPageBase   string
	DouyinTtwidURL        string
	DouyinMobileUA        string
	DouyinReferer         string
	DouyinAcceptLanguage  string
	DouyinAllowedSuffixes []string
	PageFetchTimeout      time.Duration

	// Tikwm mirror configuration (Douyin fallback tier + TikTok primary tier)
	TikwmEndpoint         string
	TikwmReferer          string
	TikTokAllowedSuffixes []string

	// Facebook upstream configuration
	FacebookResolverServices []string
	FacebookDesktopUA        string
	FacebookReferer          string
	FacebookAllowedSuffixes  []string
	FacebookScrapeTimeout    time.Duration

	// Headless browser probe configuration
	BrowserHeadless     bool
	BrowserUserAgent    string
	BrowserNavTimeout   time.Duration
	BrowserStateTimeout time.Duration
	BrowserPollSeconds  int

	// Cache stats reporting
	StatsCronSchedule string
}

// configFile represents the YAML structure
type configFile struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Logging struct {
		Directory  string `yaml:"dir"`
		OutputFile string `yaml:"output_file"`
		ErrorFile  string `yaml:"error_file"`
	} `yaml:"logging"`
	Performance struct {
		HTTPClientTimeout string `yaml:"http_client_timeout"`
		MaxIdleConns      int    `yaml:"max_idle_conns"`
		MaxConnsPerHost   int    `yaml:"max_conns_per_host"`
	} `yaml:"performance"`
	Douyin struct {
		DetailEndpoints  []string `yaml:"detail_endpoints"`
		ItemInfoURL      string   `yaml:"item_info_url"`
		VideoPageBase    string   `yaml:"video_page_base"`
		TtwidURL         string   `yaml:"ttwid_url"`
		MobileUserAgent  string   `yaml:"mobile_user_agent"`
		Referer          string   `yaml:"referer"`
		AcceptLanguage   string   `yaml:"accept_language"`
		AllowedSuffixes  []string `yaml:"allowed_suffixes"`
		PageFetchTimeout string   `yaml:"page_fetch_timeout"`
	} `yaml:"douyin"`
	Tikwm struct {
		Endpoint string `yaml:"endpoint"`
		Referer  string `yaml:"referer"`
	} `yaml:"tikwm"`
	TikTok struct {
		AllowedSuffixes []string `yaml:"allowed_suffixes"`
	} `yaml:"tiktok"`
	Facebook struct {
		ResolverServices []string `yaml:"resolver_services"`
		DesktopUserAgent string   `yaml:"desktop_user_agent"`
		Referer          string   `yaml:"referer"`
		AllowedSuffixes  []string `yaml:"allowed_suffixes"`
		ScrapeTimeout    string   `yaml:"scrape_timeout"`
	} `yaml:"facebook"`
	Browser struct {
		Headless     *bool  `yaml:"headless"`
		UserAgent    string `yaml:"user_agent"`
		NavTimeout   string `yaml:"navigation_timeout"`
		StateTimeout string `yaml:"state_wait_timeout"`
		PollSeconds  int    `yaml:"poll_seconds"`
	} `yaml:"browser"`
	Cron struct {
		StatsSchedule string `yaml:"stats_schedule"`
	} `yaml:"cron"`
}

// Manager handles configuration loading
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager creates a new configuration manager
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = "config.yaml"
	}
	return &Manager{configPath: configPath}
}

// Load reads configuration from the YAML file. A missing file yields the
// built-in defaults.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfgFile configFile
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfgFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &Config{
		ServerPort:               cfgFile.Server.Port,
		DatabaseURL:              cfgFile.Database.URL,
		LogDirectory:             cfgFile.Logging.Directory,
		LogOutputFile:            cfgFile.Logging.OutputFile,
		LogErrorFile:             cfgFile.Logging.ErrorFile,
		MaxIdleConns:             cfgFile.Performance.MaxIdleConns,
		MaxConnsPerHost:          cfgFile.Performance.MaxConnsPerHost,
		DouyinDetailEndpoints:    cfgFile.Douyin.DetailEndpoints,
		DouyinItemInfoURL:        cfgFile.Douyin.ItemInfoURL,
		DouyinVideoPageBase:      cfgFile.Douyin.VideoPageBase,
		DouyinTtwidURL:           cfgFile.Douyin.TtwidURL,
		DouyinMobileUA:           cfgFile.Douyin.MobileUserAgent,
		DouyinReferer:            cfgFile.Douyin.Referer,
		DouyinAcceptLanguage:     cfgFile.Douyin.AcceptLanguage,
		DouyinAllowedSuffixes:    cfgFile.Douyin.AllowedSuffixes,
		TikwmEndpoint:            cfgFile.Tikwm.Endpoint,
		TikwmReferer:             cfgFile.Tikwm.Referer,
		TikTokAllowedSuffixes:    cfgFile.TikTok.AllowedSuffixes,
		FacebookResolverServices: cfgFile.Facebook.ResolverServices,
		FacebookDesktopUA:        cfgFile.Facebook.DesktopUserAgent,
		FacebookReferer:          cfgFile.Facebook.Referer,
		FacebookAllowedSuffixes:  cfgFile.Facebook.AllowedSuffixes,
		BrowserUserAgent:         cfgFile.Browser.UserAgent,
		BrowserPollSeconds:       cfgFile.Browser.PollSeconds,
		StatsCronSchedule:        cfgFile.Cron.StatsSchedule,
	}

	cfg.BrowserHeadless = true
	if cfgFile.Browser.Headless != nil {
		cfg.BrowserHeadless = *cfgFile.Browser.Headless
	}

	cfg.HTTPClientTimeout = parseDuration(cfgFile.Performance.HTTPClientTimeout, 30*time.Second)
	cfg.PageFetchTimeout = parseDuration(cfgFile.Douyin.PageFetchTimeout, 20*time.Second)
	cfg.FacebookScrapeTimeout = parseDuration(cfgFile.Facebook.ScrapeTimeout, 30*time.Second)
	cfg.BrowserNavTimeout = parseDuration(cfgFile.Browser.NavTimeout, 90*time.Second)
	cfg.BrowserStateTimeout = parseDuration(cfgFile.Browser.StateTimeout, 45*time.Second)

	applyDefaults(cfg)

	m.config = cfg
	return cfg, nil
}

// Get returns the current configuration (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func applyDefaults(cfg *Config) {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "sqlite3:./data.db"
	}
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = "./logs"
	}
	if cfg.LogOutputFile == "" {
		cfg.LogOutputFile = "app.log"
	}
	if cfg.LogErrorFile == "" {
		cfg.LogErrorFile = "app.error.log"
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 20
	}

	if len(cfg.DouyinDetailEndpoints) == 0 {
		cfg.DouyinDetailEndpoints = []string{
			"https://www.iesdouyin.com/aweme/v1/web/aweme/detail/?aweme_id=",
			"https://www.douyin.com/aweme/v1/web/aweme/detail/?aweme_id=",
		}
	}
	if cfg.DouyinItemInfoURL == "" {
		cfg.DouyinItemInfoURL = "https://www.iesdouyin.com/web/api/v2/aweme/iteminfo/?item_ids="
	}
	if cfg.DouyinVideoPageBase == "" {
		cfg.DouyinVideoPageBase = "https://www.douyin.com/video/"
	}
	if cfg.DouyinTtwidURL == "" {
		cfg.DouyinTtwidURL = "https://ttwid.bytedance.com/ttwid/union/register/"
	}
	if cfg.DouyinMobileUA == "" {
		cfg.DouyinMobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.2 Mobile/15E148 Safari/604.1"
	}
	if cfg.DouyinReferer == "" {
		cfg.DouyinReferer = "https://www.douyin.com/"
	}
	if cfg.DouyinAcceptLanguage == "" {
		cfg.DouyinAcceptLanguage = "vi-VN,vi;q=0.9,en;q=0.8"
	}
	if len(cfg.DouyinAllowedSuffixes) == 0 {
		cfg.DouyinAllowedSuffixes = []string{
			".snssdk.com", ".pstatp.com", ".bytecdn.cn", ".douyin.com",
			".douyinvod.com", ".ixigua.com", ".zjcdn.com",
		}
	}

	if cfg.TikwmEndpoint == "" {
		cfg.TikwmEndpoint = "https://www.tikwm.com/api/"
	}
	if cfg.TikwmReferer == "" {
		cfg.TikwmReferer = "https://www.tikwm.com/"
	}
	if len(cfg.TikTokAllowedSuffixes) == 0 {
		cfg.TikTokAllowedSuffixes = []string{
			".tikwm.com", ".tiktokcdn.com", ".tiktokcdn-us.com", ".tiktokv.com",
		}
	}

	if cfg.FacebookDesktopUA == "" {
		cfg.FacebookDesktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if cfg.FacebookReferer == "" {
		cfg.FacebookReferer = "https://www.facebook.com/"
	}
	if len(cfg.FacebookAllowedSuffixes) == 0 {
		cfg.FacebookAllowedSuffixes = []string{".fbcdn.net", ".facebook.com", ".fb.com"}
	}

	if cfg.BrowserUserAgent == "" {
		cfg.BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_3_1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
	}
	if cfg.BrowserPollSeconds == 0 {
		cfg.BrowserPollSeconds = 10
	}

	if cfg.StatsCronSchedule == "" {
		cfg.StatsCronSchedule = "*/30 * * * *"
	}
}

// Global config manager instance
var globalManager *Manager

// Load loads configuration from the default YAML file location.
func Load() (*Config, error) {
	if globalManager == nil {
		configPath := "config.yaml"
		if _, err := os.Stat("config/config.yaml"); err == nil {
			configPath = "config/config.yaml"
		}
		globalManager = NewManager(configPath)
	}
	return globalManager.Load()
}
