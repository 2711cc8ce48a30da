package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// APITokenEnvKey is the key a composite env var uses to carry the API token.
const APITokenEnvKey = "HUBBLE_API_TOKEN"

// configOptions holds optional configuration for LoadConfig.
type configOptions struct {
	compositeEnvVar string
	skipDiscovery   bool
}

// ConfigOption is a functional option for configuring LoadConfig.
type ConfigOption func(*configOptions)

// ConfigWithCompositeEnvVar names the env var holding a JSON object of
// secrets referenced as ${KEY} from config files.
func ConfigWithCompositeEnvVar(name string) ConfigOption {
	return func(o *configOptions) {
		o.compositeEnvVar = name
	}
}

// ConfigWithoutEnvVarDiscovery stops LoadConfig from scanning the
// environment for a composite env var when none is named.
func ConfigWithoutEnvVarDiscovery() ConfigOption {
	return func(o *configOptions) {
		o.skipDiscovery = true
	}
}

// FindCompositeEnvVar scans environment variables for a JSON value
// containing key. It returns "" when there is no match and an error when
// more than one env var matches.
func FindCompositeEnvVar(key string) (string, error) {
	var matches []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name, value := parts[0], parts[1]
		if !strings.HasPrefix(strings.TrimSpace(value), "{") {
			continue
		}

		var m map[string]string
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			continue
		}
		if _, ok := m[key]; ok {
			matches = append(matches, name)
		}
	}

	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("found multiple env vars with %s: %s", key, strings.Join(matches, ", "))
	}
}

// LoadConfig merges the built-in defaults with the config files at paths,
// later files overriding earlier ones.
func LoadConfig(paths []string, opts ...ConfigOption) (Config, error) {
	var options configOptions
	for _, opt := range opts {
		opt(&options)
	}

	var result Config
	files := []ConfigFile{DefaultsConfigFile()}
	for _, p := range paths {
		f, err := ReadConfigFile(p)
		if err != nil {
			return result, err
		}
		files = append(files, f)
	}

	parent := options.compositeEnvVar
	if parent == "" && !options.skipDiscovery {
		found, err := FindCompositeEnvVar(APITokenEnvKey)
		if err != nil {
			return result, fmt.Errorf("failed to find composite env var %w", err)
		}
		parent = found
	}

	result, err := YAMLConfigUnmarshaler{}.Unmarshal(JSONCompositeEnvVar{Parent: parent}, files...)
	if err != nil {
		return result, fmt.Errorf("failed to load config %w", err)
	}
	return result, nil
}
