package config

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/strudelgate/errors"
	"gopkg.in/yaml.v3"
)

const dirName = ".strudelgate"

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Surface configures the pattern vocabulary and the loading stages reported
// while the live surface initializes.
type Surface struct {
	ExtraFunctions []string `yaml:"extra_functions"`
	ExtraSignals   []string `yaml:"extra_signals"`
	InitSteps      []string `yaml:"init_steps"`
}

type Samples struct {
	Banks []string `yaml:"banks"`
}

type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Agent struct {
	MaxToolRounds int    `yaml:"max_tool_rounds"`
	SystemPrompt  string `yaml:"system_prompt"`
}

type Config struct {
	LLMClient string    `yaml:"llm"`
	Model     string    `yaml:"model"`
	Toolsets  []Toolset `yaml:"toolsets"`
	Surface   Surface   `yaml:"surface"`
	Samples   Samples   `yaml:"samples"`
	Server    Server    `yaml:"server"`
	Agent     Agent     `yaml:"agent"`
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	return &Config{
		Toolsets: []Toolset{
			{Name: "default", Tools: []string{"updateRepl", "list_samples"}},
		},
		Surface: Surface{
			InitSteps: []string{"Loading audio engine", "Registering synths", "Loading samples"},
		},
		Samples: Samples{
			Banks: []string{
				"bd", "sd", "hh", "oh", "cp", "rim", "lt", "mt", "ht", "cr", "rd",
				"sawtooth", "square", "triangle", "sine",
				"piano", "gm_acoustic_bass", "gm_electric_guitar_clean", "gm_synth_strings_1",
				"RolandTR808", "RolandTR909", "AkaiLinn",
			},
		},
		Server: Server{Addr: "127.0.0.1:4321"},
		Agent:  Agent{MaxToolRounds: 8},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, dirName, "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, dirName, "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads a single config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, so a project
	// file replaces user-level values key by key.
	return yaml.Unmarshal(data, cfg)
}

// Validate rejects limits that would stall the agent loop.
func (c *Config) Validate() error {
	if c.Agent.MaxToolRounds <= 0 {
		return errors.New("agent.max_tool_rounds must be positive, got %d", c.Agent.MaxToolRounds)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	return nil
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}
