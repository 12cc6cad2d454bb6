package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDir = "ordernotify"

// DefaultDataDir is the storage.data_dir used when none is configured.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return dataDirFor(runtime.GOOS, home, os.Getenv("XDG_DATA_HOME"), writableDir)
}

// dataDirFor resolves the data dir for goos. XDG_DATA_HOME wins when set and
// ./data is used without a home dir. Linux prefers /var/lib when writable and
// otherwise uses ~/.local/share.
func dataDirFor(goos, home, xdg string, writable func(string) bool) string {
	if xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	if home == "" {
		return filepath.Join(".", "data")
	}
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir)
	case "windows":
		return filepath.Join(home, "AppData", "Local", appDir)
	}
	if writable("/var/lib") {
		return filepath.Join("/var/lib", appDir)
	}
	return filepath.Join(home, ".local", "share", appDir)
}

func writableDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.CreateTemp(path, ".writable-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
