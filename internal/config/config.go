package config

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr    string
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"http"`

	Data struct {
		Dir string
	} `mapstructure:"data"`

	Ledger struct {
		Path string
	} `mapstructure:"ledger"`

	Session struct {
		WarningBufferMinutes int `mapstructure:"warning_buffer_minutes"`
	} `mapstructure:"session"`

	Report struct {
		IntervalMinutes int `mapstructure:"interval_minutes"`
		CooldownSeconds int `mapstructure:"cooldown_seconds"`
	} `mapstructure:"report"`

	Admin struct {
		Phone    string
		Username string
		Password string
	} `mapstructure:"admin"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Notify struct {
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"notify"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

func Load(path string) (Config, error) {
	// .env first so APP_* overrides pick up local secrets.
	_ = gotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("app.env", "prod")
	v.SetDefault("http.addr", ":5000")
	v.SetDefault("data.dir", "data")
	v.SetDefault("ledger.path", "data/ledger.xlsx")
	v.SetDefault("session.warning_buffer_minutes", 5)
	v.SetDefault("report.interval_minutes", 60)
	v.SetDefault("report.cooldown_seconds", 60)
	v.SetDefault("notify.queue_size", 64)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// DataFile resolves a file name inside the data directory.
func (c Config) DataFile(name string) string {
	return filepath.Join(c.Data.Dir, name)
}

func (c Config) WarningBuffer() time.Duration {
	return time.Duration(c.Session.WarningBufferMinutes) * time.Minute
}

func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.Report.IntervalMinutes) * time.Minute
}

func (c Config) ReportCooldown() time.Duration {
	return time.Duration(c.Report.CooldownSeconds) * time.Second
}

// PublicBaseURL is what ends up inside QR codes. When not configured it is
// derived from the LAN address, so codes scanned by phones on the venue
// network resolve back to this host.
func (c Config) PublicBaseURL() string {
	if c.HTTP.BaseURL != "" {
		return c.HTTP.BaseURL
	}
	port := c.HTTP.Addr
	if port == "" {
		port = ":5000"
	}
	return fmt.Sprintf("http://%s%s", localIP(), port)
}

// localIP finds the address used for outbound routing. No packet is sent;
// dialing UDP just selects a source address.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer func() { _ = conn.Close() }()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
