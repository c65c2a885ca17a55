// Package config stores drawctl connection profiles in a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL = "http://localhost:8090"
	DefaultNATSURL   = "nats://localhost:4222"
)

type Config struct {
	CurrentProfile string              `yaml:"current_profile"`
	Profiles       map[string]*Profile `yaml:"profiles"`
	Defaults       *Profile            `yaml:"defaults"`
	path           string
}

// Profile points drawctl at one draw deployment.
type Profile struct {
	ServerURL string `yaml:"server_url"`
	NATSURL   string `yaml:"nats_url"`
}

func Default() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
		Defaults: &Profile{
			ServerURL: DefaultServerURL,
			NATSURL:   DefaultNATSURL,
		},
	}
}

func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".drawctl", "config.yaml"), nil
}

// Load reads cfgFile, or $HOME/.drawctl/config.yaml when empty. A missing
// file yields the defaults.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		p, err := defaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	cfg := Default()
	cfg.path = cfgFile

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	if cfg.Defaults == nil {
		cfg.Defaults = Default().Defaults
	}
	return cfg, nil
}

func (c *Config) Save() error {
	if c.path == "" {
		p, err := defaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

func (c *Config) SaveProfile(name, serverURL, natsURL string) error {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = &Profile{ServerURL: serverURL, NATSURL: natsURL}
	c.CurrentProfile = name
	return c.Save()
}

func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}
	return profile, nil
}

// Resolve returns the named profile with empty fields filled from the
// defaults. An unknown profile resolves to the defaults.
func (c *Config) Resolve(name string) Profile {
	out := Profile{ServerURL: DefaultServerURL, NATSURL: DefaultNATSURL}
	if c.Defaults != nil {
		if c.Defaults.ServerURL != "" {
			out.ServerURL = c.Defaults.ServerURL
		}
		if c.Defaults.NATSURL != "" {
			out.NATSURL = c.Defaults.NATSURL
		}
	}
	if p, err := c.GetProfile(name); err == nil {
		if p.ServerURL != "" {
			out.ServerURL = p.ServerURL
		}
		if p.NATSURL != "" {
			out.NATSURL = p.NATSURL
		}
	}
	return out
}

func (c *Config) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}

	delete(c.Profiles, name)
	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}
	return c.Save()
}
