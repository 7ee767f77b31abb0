package xtier

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/omeyang/xtier/pkg/observability/xlog"
)

// Format 配置文件格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 是 Store 的文件配置。
//
//	root: /var/cache/app
//	namespace: users
//	default_ttl: 10m
//	dir_perm: "0750"
//	max_open_files: 1000
//	poll_timeout: 30s
//	write_attempts: 3
//	log:
//	  level: info
//	  format: json
//	  file: /var/log/app/xtier.log
type Config struct {
	Root          string        `koanf:"root"`
	Namespace     string        `koanf:"namespace"`
	DefaultTTL    time.Duration `koanf:"default_ttl"`
	DirPerm       string        `koanf:"dir_perm"`
	MaxOpenFiles  int           `koanf:"max_open_files"`
	PollTimeout   time.Duration `koanf:"poll_timeout"`
	WriteAttempts int           `koanf:"write_attempts"`
	Log           LogConfig     `koanf:"log"`
}

// LogConfig 日志配置，file 为空时输出到 stderr。
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// DefaultConfig 返回默认配置（Root 为空，需要调用方设置）。
func DefaultConfig() Config {
	return Config{
		Namespace:     DefaultNamespace,
		DefaultTTL:    DefaultTTL,
		DirPerm:       fmt.Sprintf("%04o", DefaultDirPerm),
		MaxOpenFiles:  DefaultMaxOpenFiles,
		PollTimeout:   DefaultPollTimeout,
		WriteAttempts: 1,
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig 从文件加载并校验配置，格式由扩展名决定（.yaml/.yml/.json）。
// 文件中未出现的字段保持默认值。
func LoadConfig(path string) (Config, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadConfig 与 LoadConfig 相同但不校验，便于调用方在校验前覆盖字段（如命令行参数）。
func ReadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, fmt.Errorf("%w: config path is required", ErrInvalidConfig)
	}
	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return DecodeConfig(data, format)
}

// ParseConfig 解析配置数据并校验。
func ParseConfig(data []byte, format Format) (Config, error) {
	cfg, err := DecodeConfig(data, format)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeConfig 在默认配置之上解析配置数据，不做校验。
func DecodeConfig(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidConfig, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("%w: parse: %w", ErrInvalidConfig, err)
		}
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrInvalidConfig, ext)
	}
}

// Validate 校验配置。
func (c Config) Validate() error {
	var problems []string
	if c.Root == "" {
		problems = append(problems, "root is required")
	}
	if c.Namespace == "" {
		problems = append(problems, "namespace is required")
	}
	if c.DefaultTTL < 0 {
		problems = append(problems, "default_ttl must not be negative")
	}
	if _, err := c.dirPerm(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.MaxOpenFiles < 0 {
		problems = append(problems, "max_open_files must not be negative")
	}
	if c.PollTimeout < 0 {
		problems = append(problems, "poll_timeout must not be negative")
	}
	if c.WriteAttempts < 0 {
		problems = append(problems, "write_attempts must not be negative")
	}
	if c.Log.Level != "" {
		if _, err := xlog.ParseLevel(c.Log.Level); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// dirPerm 解析八进制目录权限，空字符串表示默认值。
func (c Config) dirPerm() (os.FileMode, error) {
	if c.DirPerm == "" {
		return DefaultDirPerm, nil
	}
	v, err := strconv.ParseUint(c.DirPerm, 8, 32)
	if err != nil || v > 0o777 {
		return 0, fmt.Errorf("dir_perm %q is not an octal permission", c.DirPerm)
	}
	if v&0o100 == 0 {
		return 0, fmt.Errorf("dir_perm %q lacks owner execute bit", c.DirPerm)
	}
	return os.FileMode(v), nil
}

// Options 把配置转换为 Store 选项（不含日志）。
func (c Config) Options() ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	perm, _ := c.dirPerm()
	return []Option{
		WithNamespace(c.Namespace),
		WithDefaultTTL(c.DefaultTTL),
		WithDirPerm(perm),
		WithMaxOpenFiles(c.MaxOpenFiles),
		WithPollTimeout(c.PollTimeout),
		WithWriteAttempts(c.WriteAttempts),
	}, nil
}

// NewLogger 按日志配置构建 Logger，返回的清理函数关闭日志文件。
func (c LogConfig) NewLogger() (*slog.Logger, func() error, error) {
	b := xlog.New().SetLevelString(c.Level).SetFormat(c.Format)
	if c.File != "" {
		b.SetRotation(c.File)
	}
	return b.Build()
}

// NewFromConfig 按配置创建 Store。opts 在配置之后应用，可覆盖配置项。
// 配置了日志时 Store.Close 会一并关闭日志文件。
func NewFromConfig(cfg Config, opts ...Option) (*Store, error) {
	base, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	logger, cleanup, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("%w: log: %w", ErrInvalidConfig, err)
	}
	base = append(base, WithLogger(logger))

	s, err := New(cfg.Root, append(base, opts...)...)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	s.closers = append(s.closers, cleanup)
	return s, nil
}
