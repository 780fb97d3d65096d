package util

import (
	_ "embed"
	"fmt"
	"github.com/deemkeen/fedcore/logging"
	"gopkg.in/yaml.v3"
	"os"
	"strconv"
	"strings"
)

const Name = "fedcore"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host                   string
		HttpPort               int      `yaml:"httpPort"`
		HttpPrefix             string   `yaml:"httpPrefix"`
		SslDomain              string   `yaml:"sslDomain"`
		OnionDomain            string   `yaml:"onionDomain"`
		I2pDomain              string   `yaml:"i2pDomain"`
		DbPath                 string   `yaml:"dbPath"`
		WithAp                 bool     `yaml:"withAp"`
		AllowDeletion          bool     `yaml:"allowDeletion"`
		RequireWriteCapability bool     `yaml:"requireWriteCapability"`
		FederationDomains      []string `yaml:"federationDomains"`
		BlockedDomains         []string `yaml:"blockedDomains"`
		SharedItemsDomains     []string `yaml:"sharedItemsDomains"`
		TokenCheckSeconds      int      `yaml:"tokenCheckSeconds"`
		LogLevel               string   `yaml:"logLevel"`
		LogFormat              string   `yaml:"logFormat"`
	}
}

// Origin returns httpPrefix://sslDomain
func (c *AppConfig) Origin() string {
	return c.Conf.HttpPrefix + "://" + c.Conf.SslDomain
}

func ReadConf() (*AppConfig, error) {
	log := logging.Component("config")

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Infof("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Warnf("could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Infof("Created default config file at %s", userConfigPath)
			}
		}
	}

	return ParseConf(buf)
}

// ReadConfFile reads a specific config file without falling back to defaults
func ReadConfFile(path string) (*AppConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConf(buf)
}

// ParseConf decodes yaml, applies FEDCORE_* environment overrides and defaults
func ParseConf(buf []byte) (*AppConfig, error) {
	c := &AppConfig{}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("FEDCORE_HOST")
	envHttpPort := os.Getenv("FEDCORE_HTTPPORT")
	envSslDomain := os.Getenv("FEDCORE_SSLDOMAIN")
	envOnionDomain := os.Getenv("FEDCORE_ONIONDOMAIN")
	envI2pDomain := os.Getenv("FEDCORE_I2PDOMAIN")
	envDbPath := os.Getenv("FEDCORE_DBPATH")
	envWithAp := os.Getenv("FEDCORE_WITH_AP")
	envAllowDeletion := os.Getenv("FEDCORE_ALLOW_DELETION")
	envFederation := os.Getenv("FEDCORE_FEDERATION_DOMAINS")
	envLogLevel := os.Getenv("FEDCORE_LOG_LEVEL")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			return nil, fmt.Errorf("FEDCORE_HTTPPORT: %w", err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envOnionDomain != "" {
		c.Conf.OnionDomain = envOnionDomain
	}

	if envI2pDomain != "" {
		c.Conf.I2pDomain = envI2pDomain
	}

	if envDbPath != "" {
		c.Conf.DbPath = envDbPath
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envAllowDeletion == "true" {
		c.Conf.AllowDeletion = true
	}

	if envFederation != "" {
		c.Conf.FederationDomains = SplitList(envFederation)
	}

	if envLogLevel != "" {
		c.Conf.LogLevel = envLogLevel
	}

	if c.Conf.HttpPrefix == "" {
		c.Conf.HttpPrefix = "https"
	}
	if c.Conf.DbPath == "" {
		c.Conf.DbPath = "database.db"
	}
	if c.Conf.TokenCheckSeconds <= 0 {
		c.Conf.TokenCheckSeconds = 30
	}
	if c.Conf.LogLevel == "" {
		c.Conf.LogLevel = "info"
	}

	return c, nil
}

// SplitList splits a comma separated list, dropping blanks
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
