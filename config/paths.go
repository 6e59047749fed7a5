package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// homeDir resolves the current user's home directory across platforms,
// falling back to "/" (POSIX) so ExpandPath never panics on a stripped
// environment. Unexported: the core has no reason to ask for the home
// directory on its own, only to expand a "~"-prefixed config value.
func homeDir() string {
	if runtime.GOOS == "windows" {
		if h := os.Getenv("USERPROFILE"); h != "" {
			return h
		}
		if h := os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH"); h != "" {
			return h
		}
		return `C:\`
	}
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return "/"
}

// GetConfigDir returns agentcore's settings directory: ~/.config/agentcore
// on Linux/Mac, %USERPROFILE%\.config\agentcore on Windows. Unlike the
// data directory (spec.md §6's DataDirectory, resolved through
// Config.DataDir), this location is fixed — settings.toml has to name the
// data directory before it, so it can't itself live under it.
func GetConfigDir() string {
	return filepath.Join(homeDir(), ".config", "agentcore")
}

// GetSettingsFilePath returns the path to settings.toml inside GetConfigDir.
func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// ExpandPath expands a leading "~" and any $VAR references in path, then
// cleans the result. Used for spec.md §6's DataDirectory and any
// user-supplied agent-config / MCP-manifest path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		path = filepath.Join(homeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path (and any parents) with owner-only permissions if
// it doesn't already exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// FileExists reports whether path names an existing file or directory.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions locks the data directory down to 0700,
// creating it first if necessary. The data directory holds credentials
// and conversation histories, so its permissions are checked on every
// startup, not just at first creation.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dataDir, 0700)
		}
		return err
	}
	if info.Mode().Perm() != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
