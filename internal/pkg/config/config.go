// internal/pkg/config/config.go
package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是 points-service 的完整配置。
type Config struct {
	App     AppConfig     `yaml:"app"`
	Log     LogConfig     `yaml:"log"`
	Infra   InfraConfig   `yaml:"infra"`
	Loyalty LoyaltyConfig `yaml:"loyalty"`
	Session SessionConfig `yaml:"session"`
	Points  PointsConfig  `yaml:"points"`
}

type AppConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
	Env  string `yaml:"env"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type InfraConfig struct {
	Jaeger JaegerConfig `yaml:"jaeger"`
	Redis  RedisConfig  `yaml:"redis"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Nacos  NacosConfig  `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type MySQLConfig struct {
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	Params   map[string]string `yaml:"params"`
}

// DSN 用 go-sql-driver 的 Config 拼装连接串，避免手写转义。
func (m MySQLConfig) DSN() string {
	c := mysql.NewConfig()
	c.User = m.User
	c.Passwd = m.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	c.DBName = m.Database
	c.ParseTime = true
	if len(m.Params) > 0 {
		c.Params = make(map[string]string, len(m.Params))
		for k, v := range m.Params {
			c.Params[k] = v
		}
	}
	return c.FormatDSN()
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	RedemptionTopic string   `yaml:"redemption_topic"`
	AuditorGroup    string   `yaml:"auditor_group"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
	DataID      string `yaml:"data_id"`
	Register    bool   `yaml:"register"`
}

// LoyaltyConfig 上游积分应用代理。
type LoyaltyConfig struct {
	BaseURL       string        `yaml:"base_url"`
	StorefrontURL string        `yaml:"storefront_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	// Store: memory | redis | mysql
	Store      string        `yaml:"store"`
	TTL        time.Duration `yaml:"ttl"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type PointsConfig struct {
	ExclusionPolicy string `yaml:"exclusion_policy"`
	// ExclusionRule 是 CEL 表达式，变量 item 为行项目，例如 `item.gift_card || item.vendor == "Gift"`
	ExclusionRule string `yaml:"exclusion_rule"`
	Locale        string `yaml:"locale"`
}

// Default 返回本地开发可直接使用的默认配置。
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "points-service", Port: 8090, Env: "dev"},
		Log: LogConfig{Level: "info"},
		Infra: InfraConfig{
			Redis: RedisConfig{Addrs: []string{"localhost:6379"}},
			MySQL: MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "easypoints"},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				RedemptionTopic: "easypoints.redemptions",
				AuditorGroup:    "redemption-auditor",
			},
			Nacos: NacosConfig{Group: "DEFAULT_GROUP", DataID: "points-service.yaml"},
		},
		Loyalty: LoyaltyConfig{BaseURL: "http://localhost:3000", Timeout: 5 * time.Second},
		Session: SessionConfig{Store: "memory", TTL: 24 * time.Hour, StaleAfter: 5 * time.Minute},
		Points:  PointsConfig{ExclusionPolicy: "always", Locale: "en"},
	}
}

// Parse 在默认配置之上解析 YAML。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	return cfg, cfg.Validate()
}

// LoadFile 读取配置文件，文件不存在时返回默认配置。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// ApplyEnv 用环境变量覆盖配置。
func (c *Config) ApplyEnv() {
	c.App.Port = getEnvInt("APP_PORT", c.App.Port)
	c.App.Env = getEnv("APP_ENV", c.App.Env)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	if v := getEnv("REDIS_ADDRS", ""); v != "" {
		c.Infra.Redis.Addrs = strings.Split(v, ",")
	}
	c.Infra.MySQL.Host = getEnv("MYSQL_HOST", c.Infra.MySQL.Host)
	c.Infra.MySQL.Password = getEnv("MYSQL_PASSWORD", c.Infra.MySQL.Password)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		c.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	c.Loyalty.BaseURL = getEnv("LOYALTY_BASE_URL", c.Loyalty.BaseURL)
	c.Session.Store = getEnv("SESSION_STORE", c.Session.Store)
}

// Validate 检查无法降级处理的配置错误。
func (c *Config) Validate() error {
	switch c.Session.Store {
	case "memory", "redis", "mysql":
	default:
		return errors.Errorf("unknown session store %q", c.Session.Store)
	}
	switch c.Points.ExclusionPolicy {
	case "", "always", "non-awardable-only":
	default:
		return errors.Errorf("unknown exclusion policy %q", c.Points.ExclusionPolicy)
	}
	if c.Session.StaleAfter <= 0 {
		return errors.New("session.stale_after must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
