package configs

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultInstanceKey is the instance key also served as the unkeyed default client.
const DefaultInstanceKey = "default"

// StorageSettings lists the configured blob storage instances by key.
type StorageSettings struct {
	Instances map[string]*StorageInstanceSettings `yaml:"instances" validate:"dive,keys,required,endkeys,required"`
}

type StorageInstanceSettings struct {
	Name string `yaml:"name"`
	// Connection is the raw value from configuration; see ParseConnection.
	Connection       string        `yaml:"connection"`
	ConnectionString string        `yaml:"-"`
	ServiceURL       string        `yaml:"-" validate:"omitempty,url"`
	Client           ClientOptions `yaml:"client"`
	Health           HealthOptions `yaml:"health"`
}

type ClientOptions struct {
	MaxRetries int           `yaml:"maxRetries" validate:"gte=0,lte=20"`
	TryTimeout time.Duration `yaml:"tryTimeout" validate:"gte=0"`
}

type HealthOptions struct {
	// CachedResultTimeout is how long a healthy probe result is reused. Zero disables caching.
	CachedResultTimeout time.Duration `yaml:"cachedResultTimeout" validate:"gte=0"`
	// ContainerName, when set, is also checked by the probe.
	ContainerName string        `yaml:"containerName"`
	FailureStatus string        `yaml:"failureStatus" validate:"omitempty,oneof=unhealthy degraded Unhealthy Degraded"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	Tags          []string      `yaml:"tags"`
}

// ParseConnection splits a raw connection value: an absolute http(s) URL is a service URL
// used with credential-based auth, anything else is a connection string.
func (s *StorageInstanceSettings) ParseConnection(raw string) {
	s.Connection = raw
	s.ConnectionString = ""
	s.ServiceURL = ""
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		s.ServiceURL = raw
		return
	}
	s.ConnectionString = raw
}

var settingsValidator = validator.New()

// Validate checks every instance; each needs either a connection string or a service URL.
func (s *StorageSettings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		return fmt.Errorf("invalid storage settings: %w", err)
	}
	for key, inst := range s.Instances {
		if inst.ConnectionString == "" && inst.ServiceURL == "" {
			return fmt.Errorf("invalid storage settings: instance %q has no connection", key)
		}
	}
	return nil
}

// LoadStorageSettingsFile reads storage settings from a YAML file.
func LoadStorageSettingsFile(path string) (*StorageSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage settings: %w", err)
	}
	return ParseStorageSettings(data)
}

// ParseStorageSettings decodes and validates YAML storage settings.
func ParseStorageSettings(data []byte) (*StorageSettings, error) {
	var settings StorageSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse storage settings: %w", err)
	}
	if settings.Instances == nil {
		settings.Instances = map[string]*StorageInstanceSettings{}
	}
	for key, inst := range settings.Instances {
		if inst == nil {
			return nil, fmt.Errorf("invalid storage settings: instance %q is empty", key)
		}
		if inst.Name == "" {
			inst.Name = key
		}
		inst.ParseConnection(inst.Connection)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}
