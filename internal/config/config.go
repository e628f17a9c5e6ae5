package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"babyguardian-vitals/common/config"

	"gopkg.in/yaml.v3"
)

// Config 体征采集服务配置
type Config struct {
	Database struct {
		Enabled               bool `yaml:"enabled"`
		config.DatabaseConfig `yaml:",inline"`
	} `yaml:"database"`
	Redis config.RedisConfig `yaml:"redis"`
	MQTT  struct {
		config.MQTTConfig  `yaml:",inline"`
		StatusTopic        string `yaml:"status_topic"`
		TelemetryTopic     string `yaml:"telemetry_topic"`
		CommandTopicPrefix string `yaml:"command_topic_prefix"`
	} `yaml:"mqtt"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"` // 为空时关闭鉴权和归属过滤（开发模式）
	} `yaml:"auth"`

	// 数据清洗
	Cleaning struct {
		Mode    string  `yaml:"mode"` // REJECT / CLAMP / TEST
		TempMin float64 `yaml:"temp_min"`
		TempMax float64 `yaml:"temp_max"`
		SpO2Min float64 `yaml:"spo2_min"`
		SpO2Max float64 `yaml:"spo2_max"`
		HRMin   float64 `yaml:"hr_min"`
		HRMax   float64 `yaml:"hr_max"`
	} `yaml:"cleaning"`

	// 阈值告警
	Alert struct {
		TempHigh        float64       `yaml:"temp_high"`
		SpO2Low         float64       `yaml:"spo2_low"`
		HRHigh          float64       `yaml:"hr_high"`
		HRLow           float64       `yaml:"hr_low"`
		Cooldown        time.Duration `yaml:"cooldown"`
		CooldownBackend string        `yaml:"cooldown_backend"` // memory / redis
		CooldownPrefix  string        `yaml:"cooldown_prefix"`
	} `yaml:"alert"`

	// 设备在线监控
	Liveness struct {
		Timeout       time.Duration `yaml:"timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"liveness"`

	Hub struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		QueueSize    int           `yaml:"queue_size"`
	} `yaml:"hub"`

	Realtime struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"realtime"`

	// Redis Streams 下游分发
	Stream struct {
		Enabled  bool   `yaml:"enabled"`
		Readings string `yaml:"readings"`
		Alerts   string `yaml:"alerts"`
		MaxLen   int64  `yaml:"max_len"`
	} `yaml:"stream"`

	// 风险预测服务
	Risk struct {
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout"`
		MinRows     int           `yaml:"min_rows"`
		MinRequired int           `yaml:"min_required"`
	} `yaml:"risk"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}

	cfg.Database.Enabled = false
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "babyguardian"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "babyguardian-vitals"
	cfg.MQTT.QoS = 1
	cfg.MQTT.StatusTopic = "app/status/+"
	cfg.MQTT.TelemetryTopic = "iot/vitals/#"
	cfg.MQTT.CommandTopicPrefix = "iot/commands/"

	cfg.HTTP.Addr = ":8080"

	cfg.Cleaning.Mode = "REJECT"
	cfg.Cleaning.TempMin, cfg.Cleaning.TempMax = 34, 42
	cfg.Cleaning.SpO2Min, cfg.Cleaning.SpO2Max = 70, 100
	cfg.Cleaning.HRMin, cfg.Cleaning.HRMax = 60, 220

	cfg.Alert.TempHigh = 38.0
	cfg.Alert.SpO2Low = 95
	cfg.Alert.HRHigh = 180
	cfg.Alert.HRLow = 80
	cfg.Alert.Cooldown = 30 * time.Second
	cfg.Alert.CooldownBackend = "memory"
	cfg.Alert.CooldownPrefix = "vitals:cooldown:"

	cfg.Liveness.Timeout = 30 * time.Second
	cfg.Liveness.SweepInterval = 5 * time.Second

	cfg.Hub.PingInterval = 20 * time.Second
	cfg.Hub.QueueSize = 64

	cfg.Realtime.Timeout = 6 * time.Second

	cfg.Stream.Enabled = false
	cfg.Stream.Readings = "vitals:readings"
	cfg.Stream.Alerts = "vitals:alerts"
	cfg.Stream.MaxLen = 10000

	cfg.Risk.BaseURL = ""
	cfg.Risk.Timeout = 10 * time.Second
	cfg.Risk.MinRows = 10
	cfg.Risk.MinRequired = 45

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

// Load 加载配置：默认值 -> CONFIG_FILE (YAML) -> 环境变量
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", cfg.Database.Enabled)
	cfg.Database.LoadFromEnv("DB")
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)

	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTT.StatusTopic = getEnv("MQTT_STATUS_TOPIC", cfg.MQTT.StatusTopic)
	cfg.MQTT.TelemetryTopic = getEnv("MQTT_TELEMETRY_TOPIC", cfg.MQTT.TelemetryTopic)
	cfg.MQTT.CommandTopicPrefix = getEnv("MQTT_COMMAND_TOPIC_PREFIX", cfg.MQTT.CommandTopicPrefix)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)

	cfg.Cleaning.Mode = strings.ToUpper(getEnv("CLEANING_MODE", cfg.Cleaning.Mode))
	cfg.Cleaning.TempMin = getEnvFloat("CLEANING_TEMP_MIN", cfg.Cleaning.TempMin)
	cfg.Cleaning.TempMax = getEnvFloat("CLEANING_TEMP_MAX", cfg.Cleaning.TempMax)
	cfg.Cleaning.SpO2Min = getEnvFloat("CLEANING_SPO2_MIN", cfg.Cleaning.SpO2Min)
	cfg.Cleaning.SpO2Max = getEnvFloat("CLEANING_SPO2_MAX", cfg.Cleaning.SpO2Max)
	cfg.Cleaning.HRMin = getEnvFloat("CLEANING_HR_MIN", cfg.Cleaning.HRMin)
	cfg.Cleaning.HRMax = getEnvFloat("CLEANING_HR_MAX", cfg.Cleaning.HRMax)

	cfg.Alert.TempHigh = getEnvFloat("ALERT_TEMP_HIGH", cfg.Alert.TempHigh)
	cfg.Alert.SpO2Low = getEnvFloat("ALERT_SPO2_LOW", cfg.Alert.SpO2Low)
	cfg.Alert.HRHigh = getEnvFloat("ALERT_HR_HIGH", cfg.Alert.HRHigh)
	cfg.Alert.HRLow = getEnvFloat("ALERT_HR_LOW", cfg.Alert.HRLow)
	cfg.Alert.Cooldown = getEnvDuration("ALERT_COOLDOWN", cfg.Alert.Cooldown)
	cfg.Alert.CooldownBackend = strings.ToLower(getEnv("ALERT_COOLDOWN_BACKEND", cfg.Alert.CooldownBackend))

	cfg.Liveness.Timeout = getEnvDuration("LIVENESS_TIMEOUT", cfg.Liveness.Timeout)
	cfg.Liveness.SweepInterval = getEnvDuration("LIVENESS_SWEEP_INTERVAL", cfg.Liveness.SweepInterval)

	cfg.Hub.PingInterval = getEnvDuration("HUB_PING_INTERVAL", cfg.Hub.PingInterval)
	cfg.Hub.QueueSize = getEnvInt("HUB_QUEUE_SIZE", cfg.Hub.QueueSize)

	cfg.Realtime.Timeout = getEnvDuration("REALTIME_TIMEOUT", cfg.Realtime.Timeout)

	cfg.Stream.Enabled = getEnvBool("STREAM_ENABLED", cfg.Stream.Enabled)
	cfg.Stream.Readings = getEnv("STREAM_READINGS", cfg.Stream.Readings)
	cfg.Stream.Alerts = getEnv("STREAM_ALERTS", cfg.Stream.Alerts)
	cfg.Stream.MaxLen = int64(getEnvInt("STREAM_MAXLEN", int(cfg.Stream.MaxLen)))

	cfg.Risk.BaseURL = getEnv("RISK_BASE_URL", cfg.Risk.BaseURL)
	cfg.Risk.Timeout = getEnvDuration("RISK_TIMEOUT", cfg.Risk.Timeout)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Cleaning.Mode {
	case "REJECT", "CLAMP", "TEST":
	default:
		return fmt.Errorf("invalid cleaning mode %q", c.Cleaning.Mode)
	}
	if c.Cleaning.TempMin > c.Cleaning.TempMax {
		return fmt.Errorf("invalid temperature range [%v, %v]", c.Cleaning.TempMin, c.Cleaning.TempMax)
	}
	if c.Cleaning.SpO2Min > c.Cleaning.SpO2Max {
		return fmt.Errorf("invalid spo2 range [%v, %v]", c.Cleaning.SpO2Min, c.Cleaning.SpO2Max)
	}
	if c.Cleaning.HRMin > c.Cleaning.HRMax {
		return fmt.Errorf("invalid heart rate range [%v, %v]", c.Cleaning.HRMin, c.Cleaning.HRMax)
	}
	switch c.Alert.CooldownBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid alert cooldown backend %q", c.Alert.CooldownBackend)
	}
	if c.Liveness.Timeout <= 0 || c.Liveness.SweepInterval <= 0 {
		return fmt.Errorf("liveness timeout and sweep interval must be positive")
	}
	if c.Realtime.Timeout <= 0 {
		return fmt.Errorf("realtime timeout must be positive")
	}
	if c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub queue size must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration 支持 "30s" 形式，纯数字按秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
