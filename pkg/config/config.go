// Package config loads runtime configuration from an optional YAML file and the environment.
//
// Precedence: defaults, then the YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Model providers understood by the llm package.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config is the complete configuration of the tutorials binary.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Model     ModelConfig     `yaml:"model"`
	Friends   FriendsConfig   `yaml:"friends"`
	HostAgent HostAgentConfig `yaml:"host_agent"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Todo      TodoConfig      `yaml:"todo"`

	GoogleAPIKey string `yaml:"-"`
	UseVertexAI  bool   `yaml:"-"`
	OpenAIAPIKey string `yaml:"-"`
	OllamaBase   string `yaml:"-"`
}

// ModelConfig selects and tunes the language model behind an agent.
// An empty Name lets each agent keep its own default model.
type ModelConfig struct {
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	BaseURL     string   `yaml:"base_url"`
	// Streaming makes agents publish partial model output while it is generated.
	Streaming bool   `yaml:"streaming"`
	APIKey    string `yaml:"-"`
}

// ServerAddr is a listen address for one agent server.
type ServerAddr struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (a ServerAddr) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// URL returns the http base URL advertised in agent cards.
func (a ServerAddr) URL() string {
	return "http://" + a.Addr()
}

// FriendsConfig holds the listen addresses of the friend agents.
type FriendsConfig struct {
	Karley  ServerAddr `yaml:"karley"`
	Nate    ServerAddr `yaml:"nate"`
	Kaitlyn ServerAddr `yaml:"kaitlyn"`
}

// HostAgentConfig configures the pickleball host agent.
type HostAgentConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	FriendURLs []string `yaml:"friend_urls"`
}

// SessionsConfig configures persistent sessions.
type SessionsConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// TasksConfig configures the A2A task store. An empty RedisAddr keeps tasks in memory.
type TasksConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	// TTL expires stored tasks; zero keeps them.
	TTL time.Duration `yaml:"ttl"`
}

// TodoConfig configures the todo database tutorial.
type TodoConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MissingAPIKeyError is returned when a command needs a model API key that is not set.
type MissingAPIKeyError struct {
	Variable string
	Message  string
}

func (e *MissingAPIKeyError) Error() string {
	return e.Message
}

// IsMissingAPIKey reports whether err is a MissingAPIKeyError.
func IsMissingAPIKey(err error) bool {
	var target *MissingAPIKeyError
	return errors.As(err, &target)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Model:    ModelConfig{Provider: ProviderGemini},
		Friends: FriendsConfig{
			Karley:  ServerAddr{Host: "localhost", Port: 10002},
			Nate:    ServerAddr{Host: "localhost", Port: 10003},
			Kaitlyn: ServerAddr{Host: "localhost", Port: 10004},
		},
		HostAgent: HostAgentConfig{
			Host: "127.0.0.1",
			Port: 8000,
			FriendURLs: []string{
				"http://localhost:10002",
				"http://localhost:10003",
				"http://localhost:10004",
			},
		},
		Sessions: SessionsConfig{DatabaseURL: "./my_agent_data.db"},
		Tasks:    TasksConfig{KeyPrefix: "tutorials:"},
		Todo:     TodoConfig{DatabasePath: "./database.db"},
	}
}

// Load reads path (when non-empty) over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.GoogleAPIKey = getenv("GOOGLE_API_KEY")
	c.UseVertexAI = strings.EqualFold(getenv("GOOGLE_GENAI_USE_VERTEXAI"), "TRUE")
	c.OpenAIAPIKey = getenv("OPENAI_API_KEY")
	c.OllamaBase = getenv("OLLAMA_API_BASE")

	if v := getenv("TUTORIALS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("TUTORIALS_REDIS_ADDR"); v != "" {
		c.Tasks.RedisAddr = v
	}
	if v := getenv("TUTORIALS_STREAMING"); v != "" {
		c.Model.Streaming = strings.EqualFold(v, "true") || v == "1"
	}
	if v := getenv("OLLAMA_MODEL"); v != "" && c.Model.Provider == ProviderOllama && c.Model.Name == "" {
		c.Model.Name = v
	}
}

// RequireGoogleAPIKey fails unless a Gemini key is configured or Vertex AI is enabled.
func (c *Config) RequireGoogleAPIKey() error {
	if c.UseVertexAI || c.GoogleAPIKey != "" {
		return nil
	}
	return &MissingAPIKeyError{
		Variable: "GOOGLE_API_KEY",
		Message:  "GOOGLE_API_KEY environment variable not set and GOOGLE_GENAI_USE_VERTEXAI is not TRUE.",
	}
}

// ModelFor returns the model settings for an agent whose default is provider/name.
// A model configured in the file or environment overrides the agent default.
func (c *Config) ModelFor(provider, name string) ModelConfig {
	m := c.Model
	if m.Name == "" {
		m.Provider = provider
		m.Name = name
	}
	if m.Provider == "" {
		m.Provider = ProviderGemini
	}
	switch m.Provider {
	case ProviderGemini:
		m.APIKey = c.GoogleAPIKey
	case ProviderOpenAI:
		m.APIKey = c.OpenAIAPIKey
	case ProviderOllama:
		if m.BaseURL == "" {
			m.BaseURL = c.OllamaBase
		}
	}
	return m
}
