package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Brownie44l1/asl-api/internal/dictionary"
	"github.com/Brownie44l1/asl-api/internal/live"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/Brownie44l1/asl-api/internal/session"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`

	// Requests per minute per client IP on the prediction routes. 0 disables.
	RateLimit int   `yaml:"rate_limit"`
	MaxUpload int64 `yaml:"max_upload"`
}

type History struct {
	File        string `yaml:"file"`
	CaptureRoot string `yaml:"capture_root"`
}

type Live struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

type Word struct {
	MaxLetters int `yaml:"max_letters"`
}

type Sessions struct {
	Max     int           `yaml:"max"`
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

type Config struct {
	Server     Server            `yaml:"server"`
	Model      model.Config      `yaml:"model"`
	History    History           `yaml:"history"`
	Dictionary dictionary.Config `yaml:"dictionary"`
	Live       Live              `yaml:"live"`
	Word       Word              `yaml:"word"`
	Sessions   Sessions          `yaml:"sessions"`
}

// DefaultFiles are searched, in order, when no config file is named.
var DefaultFiles = []string{"asl.yaml", "asl.yml"}

func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Port:       8080,
			CORSOrigin: "*",
			RateLimit:  120,
			MaxUpload:  32 << 20,
		},
		Model: model.Config{
			Path:       filepath.Join("models", "asl_mobilenetv2.onnx"),
			ClassMap:   filepath.Join("models", "class_map.json"),
			InputName:  "input",
			OutputName: "output",
			ImageSize:  model.DefaultImageSize,
			Layout:     model.LayoutNHWC,
		},
		History: History{
			File:        "history.json",
			CaptureRoot: "captures",
		},
		Dictionary: dictionary.Config{
			BaseURL: dictionary.DefaultBaseURL,
			Timeout: dictionary.DefaultTimeout,
		},
		Live: Live{
			Cooldown: live.DefaultCooldown,
		},
		Word: Word{
			MaxLetters: session.DefaultMaxLetters,
		},
		Sessions: Sessions{
			Max:     session.DefaultMaxSessions,
			IdleTTL: session.DefaultIdleTTL,
		},
	}
}

// Load reads the config file at path, or the first of DefaultFiles that
// exists when path is empty. Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	strs := []struct {
		name string
		dst  *string
	}{
		{"ASL_MODEL_PATH", &c.Model.Path},
		{"ASL_CLASS_MAP", &c.Model.ClassMap},
		{"ONNXRUNTIME_LIB", &c.Model.SharedLibrary},
		{"ASL_HISTORY_FILE", &c.History.File},
		{"ASL_CAPTURE_ROOT", &c.History.CaptureRoot},
	}
	for _, s := range strs {
		if v := getenv(s.name); v != "" {
			*s.dst = v
		}
	}
	return nil
}

// ResolvePaths makes the model and history paths relative to root when they
// are not absolute. Running from cmd/server uses the repository root.
func (c *Config) ResolvePaths(root string) {
	if filepath.Base(root) == "server" && filepath.Base(filepath.Dir(root)) == "cmd" {
		root = filepath.Join(root, "..", "..")
	}
	for _, p := range []*string{&c.Model.Path, &c.Model.ClassMap, &c.History.File, &c.History.CaptureRoot} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}
