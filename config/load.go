package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	yaml "sigs.k8s.io/yaml/goyaml.v3"

	fskit "github.com/moonshotcommons/timelock/fs"
)

// Names of the config file, in order of preference.
var configFileNames = []string{"config.yaml", "config.yml"}

// LoadConfigOpts contains the options for LoadConfig.
type LoadConfigOpts struct {
	// Env var containing the path to the config file
	EnvVar string
	// Name of the folder searched in the home directory (prefixed with a dot) and in /etc
	DirName string
	// If set, env vars with this prefix override values from the config file
	EnvPrefix string
	// If true, a missing config file is not an error, and the config is loaded from env vars only
	Optional bool
}

func (o LoadConfigOpts) searchPaths() []string {
	return []string{".", "~/." + o.DirName, "/etc/" + o.DirName}
}

// ConfigDest is the interface of the object the configuration is loaded into.
type ConfigDest interface {
	SetLoadedConfigPath(path string)
}

// LoadConfig loads the configuration into dst, which must be a pointer to a struct.
// The config file is read from the path in the EnvVar env var if set, or else from the first of "config.yaml" and "config.yml" found in the current folder, "~/.<DirName>", or "/etc/<DirName>".
// Env vars with EnvPrefix are applied on top of it.
func LoadConfig(dst ConfigDest, opts LoadConfigOpts) error {
	configFile, err := locateConfigFile(opts)
	if err != nil {
		return err
	}

	if configFile != "" {
		err = decodeYAMLFile(dst, configFile)
		if err != nil {
			return NewConfigError(err, "Error loading config file")
		}
	}

	if opts.EnvPrefix != "" {
		err = env.ParseWithOptions(dst, env.Options{Prefix: opts.EnvPrefix})
		if err != nil {
			return NewConfigError(err, "Error loading configuration from environment variables")
		}
	}

	dst.SetLoadedConfigPath(configFile)
	return nil
}

// Returns an empty string if no file was found and the config is optional.
func locateConfigFile(opts LoadConfigOpts) (string, error) {
	if opts.EnvVar != "" {
		if fromEnv := os.Getenv(opts.EnvVar); fromEnv != "" {
			exists, _ := fskit.FileExists(fromEnv)
			if !exists {
				return "", NewConfigError("Environmental variable "+opts.EnvVar+" points to a file that does not exist", "Error loading config file")
			}
			return fromEnv, nil
		}
	}

	paths := opts.searchPaths()
	for _, name := range configFileNames {
		found := findFile(name, paths)
		if found != "" {
			return found, nil
		}
	}

	if opts.Optional {
		return "", nil
	}
	return "", NewConfigError(
		errors.New("Could not find a configuration file config.yaml in any of: "+strings.Join(paths, ", ")),
		"Error loading config file",
	)
}

// dst must be a pointer to a struct.
func decodeYAMLFile(dst any, filePath string) error {
	f, err := os.Open(filePath) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to open config file '%s': %w", filePath, err)
	}
	defer f.Close() //nolint:errcheck

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	err = dec.Decode(dst)
	if err != nil {
		return fmt.Errorf("failed to decode config file '%s': %w", filePath, err)
	}
	return nil
}

func findFile(name string, dirs []string) string {
	for _, dir := range dirs {
		if expanded, err := homedir.Expand(dir); err == nil && expanded != "" {
			dir = expanded
		}

		candidate := filepath.Join(dir, name)
		if ok, _ := fskit.FileExists(candidate); ok {
			return candidate
		}
	}
	return ""
}
