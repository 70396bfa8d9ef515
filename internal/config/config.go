package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultWindowURL 未指定地址时打开的页面
const DefaultWindowURL = "https://conduit-realworld-example-app.fly.dev/"

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Browser struct {
		DevToolsURL string `yaml:"devtoolsUrl"`
		Width       int    `yaml:"width"`
		Height      int    `yaml:"height"`
	} `yaml:"browser"`

	Window struct {
		DefaultURL   string `yaml:"defaultUrl"`
		OpenDevTools bool   `yaml:"openDevTools"`
		Title        string `yaml:"title"`
	} `yaml:"window"`

	Capture struct {
		Binding string   `yaml:"binding"`
		Skip    []string `yaml:"skip"`
	} `yaml:"capture"`

	Relay struct {
		BufferSize int `yaml:"bufferSize"`
	} `yaml:"relay"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.Browser.DevToolsURL = "http://127.0.0.1:9222"
	c.Browser.Width = 800
	c.Browser.Height = 600
	c.Window.DefaultURL = DefaultWindowURL
	c.Window.OpenDevTools = true
	c.Window.Title = "New Window"
	c.Capture.Binding = "__netrelayEmit"
	c.Relay.BufferSize = 256
	c.Sqlite.Dsn = "netrelay.sqlite3"
	c.Sqlite.Prefix = "netrelay_"
	c.Log.Level = "debug"
	c.Log.Writer = []string{"console", "file"}
	c.Log.File = "logs/netrelay.log"
	return c
}

// Load 从 YAML 文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Capture.Binding == "" {
		return errors.New("capture.binding must not be empty")
	}
	if c.Relay.BufferSize < 0 {
		return fmt.Errorf("relay.bufferSize must not be negative: %d", c.Relay.BufferSize)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser size must be positive: %dx%d", c.Browser.Width, c.Browser.Height)
	}
	return nil
}
