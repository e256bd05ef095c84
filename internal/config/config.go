package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config compliance-dashboard 配置
type Config struct {
	HTTP struct {
		Addr           string   `yaml:"addr"`
		PprofEnabled   bool     `yaml:"pprof_enabled"`
		CookieSecure   bool     `yaml:"cookie_secure"`
		AllowedOrigins []string `yaml:"allowed_origins"` // websocket 跨域白名单
	} `yaml:"http"`
	Backend  BackendConfig  `yaml:"backend"`
	Log      LogConfig      `yaml:"log"`
	Session  SessionConfig  `yaml:"session"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Device   DeviceConfig   `yaml:"device"`
	Reminder ReminderConfig `yaml:"reminder"`
	Realtime struct {
		Enabled bool `yaml:"enabled"` // 订阅后端 /ws/{user_id} 推送
	} `yaml:"realtime"`
	Audit struct {
		DBEnabled bool `yaml:"db_enabled"` // 审计写入 PostgreSQL，否则只写日志
	} `yaml:"audit"`
	Login struct {
		RatePerMin int `yaml:"rate_per_min"`
		Burst      int `yaml:"burst"`
	} `yaml:"login"`
}

// BackendConfig 外部合规后端
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url"` // 例如 http://localhost:8001/api
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"` // 只作用于只读 GET
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // TUI 日志文件
}

// SessionConfig 会话存储
type SessionConfig struct {
	Store         string        `yaml:"store"` // memory / redis
	TTL           time.Duration `yaml:"ttl"`
	CookieName    string        `yaml:"cookie_name"`
	SweepInterval time.Duration `yaml:"sweep_interval"` // 过期会话的视图回收周期
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// DatabaseConfig 数据库配置（审计）
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int           `yaml:"max_conns"`
	MaxIdle         int           `yaml:"max_idle"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// MQTTConfig MQTT配置（设备发现、真实遥测、提醒推送）
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`

	AnnounceTopic     string `yaml:"announce_topic"`     // devices/+/announce
	UsageTopic        string `yaml:"usage_topic"`        // devices/{device_id}/usage
	NotificationTopic string `yaml:"notification_topic"` // patients/{patient_id}/notifications
}

// DeviceConfig 配对模拟器
type DeviceConfig struct {
	Mode          string        `yaml:"mode"`        // synthetic / mqtt / none
	SourceMode    string        `yaml:"source_mode"` // synthetic / mqtt
	NamePrefixes  []string      `yaml:"name_prefixes"`
	Period        time.Duration `yaml:"period"`
	PairDelay     time.Duration `yaml:"pair_delay"`
	TrailSize     int           `yaml:"trail_size"`
	StreamEnabled bool          `yaml:"stream_enabled"` // 遥测镜像到 Redis Streams
	StreamName    string        `yaml:"stream_name"`
}

// ReminderConfig 用药/佩戴提醒
type ReminderConfig struct {
	Notifier string        `yaml:"notifier"` // log / mqtt / none
	Delay    time.Duration `yaml:"delay"`
	Every    string        `yaml:"every"` // cron spec
}

// Default 默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"

	cfg.Backend.BaseURL = "http://localhost:8001/api"
	cfg.Backend.Timeout = 10 * time.Second
	cfg.Backend.RetryCount = 2

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.File = "compliance-tui.log"

	cfg.Session.Store = "memory"
	cfg.Session.TTL = 12 * time.Hour
	cfg.Session.CookieName = "cd_session"
	cfg.Session.SweepInterval = time.Minute

	cfg.Redis.Addr = "localhost:6379"

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "compliance"
	cfg.Database.SSLMode = "disable"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "compliance-dashboard"
	cfg.MQTT.QoS = 1
	cfg.MQTT.AnnounceTopic = "devices/+/announce"
	cfg.MQTT.UsageTopic = "devices/{device_id}/usage"
	cfg.MQTT.NotificationTopic = "patients/{patient_id}/notifications"

	cfg.Device.Mode = "synthetic"
	cfg.Device.SourceMode = "synthetic"
	cfg.Device.NamePrefixes = []string{"ESP32", "ESP"}
	cfg.Device.Period = 30 * time.Second
	cfg.Device.PairDelay = 500 * time.Millisecond
	cfg.Device.TrailSize = 3
	cfg.Device.StreamName = "telemetry:samples"

	cfg.Reminder.Notifier = "log"
	cfg.Reminder.Delay = 5 * time.Second
	cfg.Reminder.Every = "@every 24h"

	cfg.Realtime.Enabled = false
	cfg.Login.RatePerMin = 30
	cfg.Login.Burst = 5
	return cfg
}

// Load 加载配置：默认值 -> CONFIG_FILE(yaml) -> 环境变量（含 .env）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.PprofEnabled = parseBool(os.Getenv("PPROF_ENABLED"), cfg.HTTP.PprofEnabled)
	cfg.HTTP.CookieSecure = parseBool(os.Getenv("COOKIE_SECURE"), cfg.HTTP.CookieSecure)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}

	cfg.Backend.BaseURL = strings.TrimRight(getEnv("BACKEND_URL", cfg.Backend.BaseURL), "/")
	cfg.Backend.Timeout = parseDuration(os.Getenv("BACKEND_TIMEOUT"), cfg.Backend.Timeout)
	cfg.Backend.RetryCount = parseInt(os.Getenv("BACKEND_RETRY_COUNT"), cfg.Backend.RetryCount)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Session.Store = getEnv("SESSION_STORE", cfg.Session.Store)
	cfg.Session.TTL = parseDuration(os.Getenv("SESSION_TTL"), cfg.Session.TTL)
	cfg.Session.CookieName = getEnv("SESSION_COOKIE", cfg.Session.CookieName)
	cfg.Session.SweepInterval = parseDuration(os.Getenv("SESSION_SWEEP_INTERVAL"), cfg.Session.SweepInterval)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = parseInt(os.Getenv("REDIS_DB"), cfg.Redis.DB)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = parseInt(os.Getenv("DB_PORT"), cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.AnnounceTopic = getEnv("MQTT_ANNOUNCE_TOPIC", cfg.MQTT.AnnounceTopic)
	cfg.MQTT.UsageTopic = getEnv("MQTT_USAGE_TOPIC", cfg.MQTT.UsageTopic)
	cfg.MQTT.NotificationTopic = getEnv("MQTT_NOTIFICATION_TOPIC", cfg.MQTT.NotificationTopic)

	cfg.Device.Mode = getEnv("DEVICE_MODE", cfg.Device.Mode)
	cfg.Device.SourceMode = getEnv("TELEMETRY_SOURCE", cfg.Device.SourceMode)
	if v := os.Getenv("DEVICE_NAME_PREFIXES"); v != "" {
		cfg.Device.NamePrefixes = splitList(v)
	}
	cfg.Device.Period = parseDuration(os.Getenv("TELEMETRY_PERIOD"), cfg.Device.Period)
	cfg.Device.PairDelay = parseDuration(os.Getenv("DEVICE_PAIR_DELAY"), cfg.Device.PairDelay)
	cfg.Device.StreamEnabled = parseBool(os.Getenv("TELEMETRY_STREAM_ENABLED"), cfg.Device.StreamEnabled)
	cfg.Device.StreamName = getEnv("TELEMETRY_STREAM", cfg.Device.StreamName)

	cfg.Reminder.Notifier = getEnv("NOTIFIER", cfg.Reminder.Notifier)
	cfg.Reminder.Delay = parseDuration(os.Getenv("REMINDER_DELAY"), cfg.Reminder.Delay)
	cfg.Reminder.Every = getEnv("REMINDER_EVERY", cfg.Reminder.Every)

	cfg.Realtime.Enabled = parseBool(os.Getenv("REALTIME_ENABLED"), cfg.Realtime.Enabled)
	cfg.Audit.DBEnabled = parseBool(os.Getenv("AUDIT_DB_ENABLED"), cfg.Audit.DBEnabled)
	cfg.Login.RatePerMin = parseInt(os.Getenv("LOGIN_RATE_PER_MIN"), cfg.Login.RatePerMin)
	cfg.Login.Burst = parseInt(os.Getenv("LOGIN_BURST"), cfg.Login.Burst)

	// 显示列表固定最多 3 条
	if cfg.Device.TrailSize <= 0 || cfg.Device.TrailSize > 3 {
		cfg.Device.TrailSize = 3
	}
	if cfg.Device.Period <= 0 {
		cfg.Device.Period = 30 * time.Second
	}
	if cfg.Session.SweepInterval <= 0 {
		cfg.Session.SweepInterval = time.Minute
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
