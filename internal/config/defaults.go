package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "inputsentry"

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/inputsentry/
//   - Linux:   $XDG_DATA_HOME/inputsentry/ or ~/.local/share/inputsentry/
//   - Windows: %APPDATA%\inputsentry\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appDir)
	case "windows":
		return windowsDir("APPDATA", "Roaming")
	default:
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/inputsentry/
//   - Linux:   $XDG_CONFIG_HOME/inputsentry/ or ~/.config/inputsentry/
//   - Windows: %APPDATA%\inputsentry\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return PlatformDataDir()
	default:
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func xdgDir(env string, fallback ...string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appDir)
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, appDir)...)
}

func windowsDir(env, roaming string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appDir)
	}
	return filepath.Join(homeDir(), "AppData", roaming, appDir)
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the working directory, then the config directory,
// for config.<ext>. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
