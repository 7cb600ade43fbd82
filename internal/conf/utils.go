// conf/utils.go
package conf

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaultConfigPaths returns the directories searched for nmix.yaml after
// the working directory, in order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}
	return []string{
		filepath.Join(homeDir, ".config", ConfigName),
		filepath.Join("/etc", ConfigName),
	}, nil
}

// DefaultConfigFile is the path written by "nmix config init" when no path
// is given.
func DefaultConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(paths[0], ConfigName+".yaml"), nil
}
