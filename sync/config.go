package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/config"
)

const (
	DefaultStartDate      = "2020-01-01T00:00:00.000Z"
	DefaultPageSize       = 200
	DefaultRequestTimeout = 60.0
	DefaultInterPageDelay = 0.5
)

// Config is the connector configuration shared by all streams.
type Config struct {
	APIToken       string     `yaml:"api_token" json:"api_token"`
	StartDate      string     `yaml:"start_date" json:"start_date" validate:"omitempty,iso8601"`
	PageSize       int        `yaml:"page_size" json:"page_size" validate:"gt=0"`
	RequestTimeout float64    `yaml:"request_timeout" json:"request_timeout" validate:"gt=0"`
	MaxRetries     int        `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	InterPageDelay float64    `yaml:"inter_page_delay" json:"inter_page_delay" validate:"gte=0"`
	Endpoints      []Endpoint `yaml:"endpoints" json:"endpoints"`
}

// Endpoint is one API collection exposed as a stream.
// Name may be omitted, in which case it is derived from the URL path.
type Endpoint struct {
	Name        string `yaml:"name" json:"name"`
	EndpointURL string `yaml:"endpoint_url" json:"endpoint_url"`
}

// DefaultConfig returns the documented defaults with no token and no endpoints.
func DefaultConfig() Config {
	return Config{
		StartDate:      DefaultStartDate,
		PageSize:       DefaultPageSize,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		InterPageDelay: DefaultInterPageDelay,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// CompositeEnvVar resolves ${VAR} references in config files.
type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

// JSONCompositeEnvVar looks variables up in a JSON object held by the
// environment variable Parent, falling back to the process environment.
type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				if v, exists := m[child]; exists {
					return v, true
				}
			}
		}
	}
	return os.LookupEnv(child)
}

type YAMLConfigUnmarshaler struct{}

func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...ConfigFile) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		if s.Length > 0 {
			options = append(options, config.Source(s.Reader))
		}
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	populate := func(key string, target interface{}) error {
		if !yaml.Get(key).HasValue() {
			return nil
		}
		if err := yaml.Get(key).Populate(target); err != nil {
			return readError(key, err)
		}
		return nil
	}
	err = populate("api_token", &result.APIToken)
	if err == nil {
		err = populate("start_date", &result.StartDate)
	}
	if err == nil {
		err = populate("page_size", &result.PageSize)
	}
	if err == nil {
		err = populate("request_timeout", &result.RequestTimeout)
	}
	if err == nil {
		err = populate("max_retries", &result.MaxRetries)
	}
	if err == nil {
		err = populate("inter_page_delay", &result.InterPageDelay)
	}
	if err == nil {
		err = populate("endpoints", &result.Endpoints)
	}
	if err != nil {
		return result, err
	}

	return result, nil
}
