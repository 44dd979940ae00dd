package config

import (
	"os"
	"path/filepath"
)

// ClientDir returns the per-user configuration directory the Token Store
// and client config.json live in: <os-config>/<appName>.
func ClientDir(appName string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}
