package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths stores resolved runtime file locations.
type Paths struct {
	RootDir    string
	ConfigFile string
	DBFile     string
	LogFile    string
}

func ResolvePaths() (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}

	return PathsIn(filepath.Join(cfgRoot, Name))
}

// PathsIn lays the runtime files out under root, creating it if needed.
func PathsIn(root string) (Paths, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	return Paths{
		RootDir:    root,
		ConfigFile: filepath.Join(root, ConfigFilename),
		DBFile:     filepath.Join(root, DBFilename),
		LogFile:    filepath.Join(root, LogFilename),
	}, nil
}

// ResolvePathsFor uses configFile's directory when it is set and the user
// config dir otherwise.
func ResolvePathsFor(configFile string) (Paths, error) {
	configFile = strings.TrimSpace(configFile)
	if configFile == "" {
		return ResolvePaths()
	}
	paths, err := PathsIn(filepath.Dir(configFile))
	if err != nil {
		return Paths{}, err
	}
	paths.ConfigFile = configFile

	return paths, nil
}
