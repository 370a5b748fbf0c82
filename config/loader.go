// =============================================================================
// 📦 Roundtable 配置加载器
// =============================================================================
// 优先级: 默认值 → YAML 文件 → 环境变量
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithValidator(func(c *config.Config) error { return c.Validate() }).
//	    Load()
//
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/roundtable/agent/persistence"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "ROUNDTABLE"

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建加载器，默认读取 ROUNDTABLE_* 环境变量
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix, lookupEnv: os.LookupEnv}
}

// WithConfigPath 设置 YAML 文件路径；文件不存在时按默认值继续
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 替换环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加校验函数，按添加顺序执行，第一个失败即返回
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 依次叠加默认值、文件和环境变量，然后执行校验
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.overlayFile(cfg); err != nil {
			return nil, err
		}
	}
	if err := l.overlayEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) overlayFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("failed to read config file %s: %w", l.configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", l.configPath, err)
	}
	return nil
}

// =============================================================================
// 🌱 环境变量覆盖
// =============================================================================

var durationType = reflect.TypeOf(time.Duration(0))

// overlayEnv 沿 env 标签遍历结构体；所有无法解析的变量一起报告
func (l *Loader) overlayEnv(cfg *Config) error {
	var errs []error
	l.walkEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix, &errs)
	return errors.Join(errs...)
}

func (l *Loader) walkEnv(v reflect.Value, prefix string, errs *[]error) {
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			l.walkEnv(field, key, errs)
			continue
		}
		raw, ok := l.lookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		if err := assign(field, raw); err != nil {
			*errs = append(*errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		}
	}
}

func assign(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		// 逗号分隔，忽略空项
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// =============================================================================
// ✅ 校验
// =============================================================================

// Validate 检查端口、生成参数、persona 目录与存储后端组合是否自洽
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		add("invalid HTTP port %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		add("invalid metrics port %d", c.Server.MetricsPort)
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		add("rate limit must not be negative")
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		add("temperature must be between 0 and 2, got %g", c.Chat.Temperature)
	}
	if c.Chat.MaxTokens < 0 {
		add("chat.max_tokens must not be negative")
	}
	if c.Providers.Timeout < 0 {
		add("providers.timeout must not be negative")
	}

	seen := make(map[string]struct{}, len(c.Personas))
	for _, p := range c.Personas {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[p.ID]; dup {
			add("persona %s defined twice", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	switch c.Store.Type {
	case persistence.StoreTypeMemory, persistence.StoreTypeMongo:
	case persistence.StoreTypeFile:
		if c.Store.BaseDir == "" {
			add("store.base_dir is required for the file store")
		}
	case persistence.StoreTypeRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required for the redis store")
		}
	case persistence.StoreTypeSQL:
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			add("unsupported database driver %q", c.Database.Driver)
		}
	default:
		add("unsupported store type %q", c.Store.Type)
	}
	if c.Cache.Enabled && c.Redis.Addr == "" {
		add("cache.enabled requires redis.addr")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
}
