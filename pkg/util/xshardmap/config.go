package xshardmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 定义配置数据格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Config 是可从配置文件加载的 Map 配置。
//
//	shard_count: 64
//	release_on_collect: true
type Config struct {
	// ShardCount 分片数量，0 表示使用默认值。
	ShardCount int `koanf:"shard_count"`

	// ReleaseOnCollect 是否开启 GC 兜底释放，未设置时使用默认值（开启）。
	ReleaseOnCollect *bool `koanf:"release_on_collect"`
}

// LoadConfig 从字节数据解析配置。空数据返回零值 Config。
func LoadConfig(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	var cfg Config
	if len(data) == 0 {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadConfigFile 从文件加载配置，根据扩展名（.yaml/.yml/.json）检测格式。
func LoadConfigFile(path string) (Config, error) {
	var format Format
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".json":
		format = FormatJSON
	default:
		return Config{}, fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("xshardmap: read config: %w", err)
	}
	return LoadConfig(data, format)
}

// Options 将配置转换为 Option 列表，未设置的字段不产生 Option。
func (c Config) Options() []Option {
	var opts []Option
	if c.ShardCount != 0 {
		opts = append(opts, WithShardCount(c.ShardCount))
	}
	if c.ReleaseOnCollect != nil {
		opts = append(opts, WithReleaseOnCollect(*c.ReleaseOnCollect))
	}
	return opts
}
