package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type NotificationsConfig struct {
	RetentionDays          int `yaml:"retention_days"`
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`
}

type TasksConfig struct {
	DefaultRadiusKm float64 `yaml:"default_radius_km"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Tasks         TasksConfig         `yaml:"tasks"`
}

func LoadConfig() *Config {
	f, err := os.Open("config/config.yaml")
	if err != nil {
		panic("Failed to open config.yaml: " + err.Error())
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		panic("Failed to parse config.yaml: " + err.Error())
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Notifications.RetentionDays == 0 {
		cfg.Notifications.RetentionDays = 30
	}
	if cfg.Notifications.CleanupIntervalMinutes == 0 {
		cfg.Notifications.CleanupIntervalMinutes = 60
	}
	if cfg.Tasks.DefaultRadiusKm == 0 {
		cfg.Tasks.DefaultRadiusKm = 50
	}
	return &cfg
}
