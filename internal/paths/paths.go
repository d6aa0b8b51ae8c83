// Package paths centralizes file and directory names used by the controller.
// Every path the daemon or the controller touches is derived here from the
// user's home directory; nothing else in the repository concatenates paths.
package paths

import (
	"errors"
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// HomeEnv is the environment variable the base directory is derived from.
const HomeEnv = "HOME"

// Directory names relative to $HOME.
const (
	BaseDirRel   = "podzilla"
	ModuleDirRel = "modules/mpd"
)

// Module directory file names shared with the daemon's configuration.
const (
	ConfigFile    = "mpd.conf"
	DatabaseFile  = "mpddb"
	PIDFile       = "pid"
	StateFile     = "state"
	LogFile       = "messages.log"
	MusicDir      = "music"
	PlaylistsDir  = "playlists"
	BinaryName    = "podmpd"
	ControlConfig = "podmpd.toml"
	ControlLog    = "podmpd.log"
	ControlLock   = "podmpd.lock"
)

// ErrHomeUnset is returned when the home directory variable is empty or unset.
// A layout is never built from an empty home, since that would place the
// daemon's files relative to the working directory.
var ErrHomeUnset = errors.New("paths: " + HomeEnv + " is not set")

// ///////////////////////////////////////////////
// Layout
// ///////////////////////////////////////////////

// Layout provides path construction methods rooted at a home directory.
type Layout struct {
	Home string
}

// Resolve builds a Layout from the home directory reported by getenv.
// Pass [os.Getenv] in production; tests pass a map lookup.
func Resolve(getenv func(string) string) (Layout, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	home := getenv(HomeEnv)
	if home == "" {
		return Layout{}, ErrHomeUnset
	}
	return Layout{Home: home}, nil
}

// FromHome returns a Layout for an explicit home directory, failing the same
// way [Resolve] does when home is empty.
func FromHome(home string) (Layout, error) {
	return Resolve(func(string) string { return home })
}

// Base returns $HOME/podzilla.
func (l Layout) Base() string { return filepath.Join(l.Home, BaseDirRel) }

// ModuleDir returns $HOME/podzilla/modules/mpd.
func (l Layout) ModuleDir() string { return filepath.Join(l.Base(), ModuleDirRel) }

// Config returns the path of the daemon configuration file.
func (l Layout) Config() string { return l.file(ConfigFile) }

// Database returns the path of the daemon database file.
func (l Layout) Database() string { return l.file(DatabaseFile) }

// PID returns the path of the pid file written by the daemon.
func (l Layout) PID() string { return l.file(PIDFile) }

// State returns the path of the daemon state file.
func (l Layout) State() string { return l.file(StateFile) }

// Log returns the path of the daemon's own log file.
func (l Layout) Log() string { return l.file(LogFile) }

// Music returns the music directory scanned by the daemon.
func (l Layout) Music() string { return l.file(MusicDir) }

// Playlists returns the playlist directory.
func (l Layout) Playlists() string { return l.file(PlaylistsDir) }

// ControlConfig returns the path of the controller's TOML settings.
func (l Layout) ControlConfig() string { return l.file(ControlConfig) }

// ControlLog returns the path of the controller's log file.
func (l Layout) ControlLog() string { return l.file(ControlLog) }

// ControlLock returns the path of the activation lock file.
func (l Layout) ControlLock() string { return l.file(ControlLock) }

func (l Layout) file(name string) string { return filepath.Join(l.ModuleDir(), name) }

// EnsureModuleDir creates the module directory and its music and playlist
// subdirectories.
func (l Layout) EnsureModuleDir() error {
	for _, dir := range []string{l.ModuleDir(), l.Music(), l.Playlists()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
