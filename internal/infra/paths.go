package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

const (
	AppName = "bitmex-orderbook"

	// HomeEnv points the recorder at an explicit workspace.
	HomeEnv = "BITMEX_ORDERBOOK_HOME"
	// ConfigEnv points at an explicit config file.
	ConfigEnv = "BITMEX_ORDERBOOK_CONFIG"

	localWorkspace = "_workspace"
	lockFileName   = "instance.lock"
)

// GetWorkspaceDir returns the root directory for all runtime data.
// Order: $BITMEX_ORDERBOOK_HOME, ./_workspace if present, then the OS data dir.
func GetWorkspaceDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	if _, err := os.Stat(localWorkspace); err == nil {
		return localWorkspace
	}

	base, ok := osDataDir()
	if !ok {
		return localWorkspace
	}
	return filepath.Join(base, AppName)
}

// osDataDir is %AppData% on Windows, ~/Library/Application Support on macOS
// and $XDG_DATA_HOME (default ~/.local/share) on Linux.
func osDataDir() (string, bool) {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return dir, true
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming"), true
	case "darwin":
		return filepath.Join(home, "Library", "Application Support"), true
	case "linux":
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir, true
		}
		return filepath.Join(home, ".local", "share"), true
	default:
		return "", false
	}
}

// EnsureDir creates the directory if it doesn't exist with safe permissions (0755).
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// CreateLockFile claims workDir for this process. Two recorders sharing a
// pebble directory would corrupt each other's book state.
// The returned func releases the lock.
func CreateLockFile(workDir string) (func(), error) {
	lockPath := filepath.Join(workDir, lockFileName)

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			owner, _ := os.ReadFile(lockPath)
			return nil, fmt.Errorf("another instance is already running (pid %s, lock file: %s)", owner, lockPath)
		}
		return nil, err
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock file: %w", werr)
	}

	return func() { os.Remove(lockPath) }, nil
}

// ResolveConfigPath finds config.yaml.
// Order: $BITMEX_ORDERBOOK_CONFIG, ./configs/config.yaml, then the OS config dir.
func ResolveConfigPath() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}

	defaultPath := filepath.Join("configs", "config.yaml")
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}

	if root, err := os.UserConfigDir(); err == nil {
		osPath := filepath.Join(root, AppName, "config.yaml")
		if _, err := os.Stat(osPath); err == nil {
			return osPath
		}
	}

	// LoadConfig reports the missing file
	return defaultPath
}

// Dirs are the locations a run writes to, all under one workspace root.
type Dirs struct {
	Root      string
	Data      string // pebble + sqlite
	Snapshots string
	Dumps     string // panic dumps
}

// ResolveDirs lays out the runtime directories under root.
func ResolveDirs(root string) Dirs {
	return Dirs{
		Root:      root,
		Data:      filepath.Join(root, "data"),
		Snapshots: filepath.Join(root, "snapshots"),
		Dumps:     filepath.Join(root, "dumps"),
	}
}

// Ensure creates every directory of d.
func (d Dirs) Ensure() error {
	for _, p := range []string{d.Root, d.Data, d.Snapshots, d.Dumps} {
		if err := EnsureDir(p); err != nil {
			return fmt.Errorf("create %s: %w", p, err)
		}
	}
	return nil
}
