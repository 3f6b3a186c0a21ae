// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	API struct {
		BasePath    string `yaml:"base_path"`
		SwaggerHost string `yaml:"swagger_host"`
	} `yaml:"api"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Token TokenConfig `yaml:"token"`

	Store struct {
		Backend string `yaml:"backend"` // postgres, redis or memory
		Redis   struct {
			Host      string `yaml:"host"`
			Port      int    `yaml:"port"`
			DB        int    `yaml:"db"`
			Password  string `yaml:"password"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"store"`

	Users struct {
		Static   map[string]string `yaml:"static"` // identifier -> owner id
		Postgres struct {
			Enabled bool   `yaml:"enabled"`
			Query   string `yaml:"query"` // Parameterized query returning the owner id
		} `yaml:"postgres"`
	} `yaml:"users"`

	Admin struct {
		Keys []string `yaml:"keys"` // Static keys accepted on the issuance endpoint
	} `yaml:"admin"`
}

type TokenConfig struct {
	DefaultTTL           int   `yaml:"default_ttl_seconds"`
	RenewalTime          int   `yaml:"renewal_seconds"`
	PreventMultipleLogin *bool `yaml:"prevent_multiple_login"`
	CleanupInterval      int   `yaml:"cleanup_interval_seconds"` // 0 disables the sweeper
	MaxDeviceInfoLength  int   `yaml:"max_device_info_length"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func (t TokenConfig) TTL() time.Duration {
	return time.Duration(t.DefaultTTL) * time.Second
}

func (t TokenConfig) Renewal() time.Duration {
	return time.Duration(t.RenewalTime) * time.Second
}

func (t TokenConfig) SingleSession() bool {
	return t.PreventMultipleLogin == nil || *t.PreventMultipleLogin
}

func (t TokenConfig) Interval() time.Duration {
	return time.Duration(t.CleanupInterval) * time.Second
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	config.SetDefaults()
	return config, nil
}

// SetDefaults fills in every option left unset.
func (config *Config) SetDefaults() {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.API.BasePath == "" {
		config.API.BasePath = "/"
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Token.DefaultTTL == 0 {
		config.Token.DefaultTTL = 86400
	}
	if config.Token.RenewalTime == 0 {
		config.Token.RenewalTime = 3600
	}
	if config.Token.MaxDeviceInfoLength == 0 {
		config.Token.MaxDeviceInfoLength = 255
	}
	if config.Store.Backend == "" {
		config.Store.Backend = "postgres"
	}
	if config.Store.Postgres.Port == 0 {
		config.Store.Postgres.Port = 5432
	}
	if config.Store.Postgres.SSLMode == "" {
		config.Store.Postgres.SSLMode = "disable"
	}
	if config.Store.Redis.Port == 0 {
		config.Store.Redis.Port = 6379
	}
	if config.Store.Redis.KeyPrefix == "" {
		config.Store.Redis.KeyPrefix = "accesstoken:"
	}
	if config.Users.Postgres.Query == "" {
		config.Users.Postgres.Query = "SELECT id FROM users WHERE username = $1"
	}
}
