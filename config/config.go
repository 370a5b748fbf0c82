package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/roundtable/agent/persistence"
	"github.com/BaSui01/roundtable/types"
)

// Config 是 Roundtable 的完整配置。
// yaml 标签对应配置文件键；env 标签拼接成 ROUNDTABLE_<SECTION>_<FIELD> 环境变量。
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Chat      ChatConfig      `yaml:"chat" env:"CHAT"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`

	// Personas 只能来自 YAML；运行期间由 Catalog 热重载
	Personas []types.Persona `yaml:"personas"`

	Store     persistence.StoreConfig `yaml:"store" env:"STORE"`
	Redis     RedisConfig             `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig          `yaml:"database" env:"DATABASE"`
	Cache     CacheConfig             `yaml:"cache" env:"CACHE"`
	Log       LogConfig               `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig         `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 入口。WriteTimeout 要盖住一整次运行（多位 persona 依次请求后端）。
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"` // 0 关闭独立指标端口
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	APIKeys            []string `yaml:"api_keys" env:"API_KEYS"` // 为空时不鉴权
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// ChatConfig persona 未覆盖时的生成参数
type ChatConfig struct {
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"` // 0 交给后端决定
}

// ProvidersConfig 后端凭证表。Providers 按服务商名索引，只能写在 YAML 里。
type ProvidersConfig struct {
	Default   types.ProviderConfig            `yaml:"default" env:"DEFAULT"`
	Providers map[string]types.ProviderConfig `yaml:"providers"`
	Timeout   time.Duration                   `yaml:"timeout" env:"TIMEOUT"`
}

// ProviderConfigs 生成一次运行用的只读配置表，服务商名统一为小写
func (p ProvidersConfig) ProviderConfigs() types.ProviderConfigs {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	out := types.ProviderConfigs{
		Default:   p.Default,
		Providers: make(map[string]types.ProviderConfig, len(p.Providers)),
	}
	out.Default.Provider = norm(out.Default.Provider)
	for name, cfg := range p.Providers {
		key := norm(name)
		if cfg.Provider == "" {
			cfg.Provider = key
		}
		out.Providers[key] = cfg
	}
	return out
}

// RedisConfig 预览缓存与 Redis 会话存储共用
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig SQL 会话存储。Driver 取 postgres、mysql 或 sqlite；sqlite 时 Name 为文件路径。
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN 按驱动拼接 gorm 连接串，未知驱动返回空串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	}
	return ""
}

// CacheConfig 会话列表上的最新消息预览（需要 Redis）
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	PreviewTTL time.Duration `yaml:"preview_ttl" env:"PREVIEW_TTL"`
}

// LogConfig zap 日志
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug | info | warn | error
	Format           string   `yaml:"format" env:"FORMAT"` // json | console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig OTLP 导出
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
