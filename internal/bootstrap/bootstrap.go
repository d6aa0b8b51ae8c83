// Package bootstrap seeds the daemon's module directory with a configuration
// file and an empty database on first activation.
//
// Both files are created at most once. An existing file is never inspected,
// repaired or rewritten, even when its content is not what would be written.
package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"tools.zach/dev/podmpd/internal/atomicfile"
	"tools.zach/dev/podmpd/internal/paths"
)

// configTemplate is formatted with the module directory six times.
const configTemplate = "music_directory\t\t\"%[1]s/music\"\n" +
	"playlist_directory \t\"%[1]s/playlists\"\n" +
	"db_file\t\t\t\t\"%[1]s/mpddb\"\n" +
	"pid_file\t\t\t\t\"%[1]s/pid\"\n" +
	"state_file\t\t\t\t\"%[1]s/state\"\n" +
	"user\t\t\t\t\t\"mpd\"\n" +
	"port\t\t\t\t\t\"6600\"\n" +
	"bind_to_address\t\t\"localhost\"\n" +
	"log_file\t\t\t\t\"%[1]s/messages.log\"\n" +
	"#\tUsually this is either:\n" +
	"#\tISO-8859-1 or UTF-8\n" +
	"filesystem_charset\t\t\"ISO-8859-1\"\n" +
	"input {\n\tplugin \"curl\"\n}\n" +
	"decoder {\n\tplugin \"hybrid_dsd\"\n\tenabled \"no\"\n}\n" +
	"decoder {\n\tplugin \"wildmidi\"\n\tenabled \"no\"\n}\n" +
	"audio_output {\n\ttype \"alsa\"\n\tname \"My ALSA Device\"\n}\n"

// Database is the placeholder database written before the daemon's first scan.
const Database = "info_begin\n" +
	"mpd_version: mpd-ke\n" +
	"fs_charset: ISO-8859-1\n" +
	"info_end\n" +
	"songList begin\n" +
	"songList end\n"

// Config renders the daemon configuration for a module directory.
func Config(moduleDir string) []byte {
	return []byte(fmt.Sprintf(configTemplate, moduleDir))
}

// Result reports which files a [Run] call created.
type Result struct {
	ConfigCreated   bool
	DatabaseCreated bool
}

// Run creates the module directory tree, then mpd.conf and mpddb if they are
// missing. Any failure other than "already exists" is returned immediately.
func Run(l paths.Layout) (Result, error) {
	var res Result
	if err := l.EnsureModuleDir(); err != nil {
		return res, fmt.Errorf("create module dir %s: %w", l.ModuleDir(), err)
	}

	var err error
	if res.ConfigCreated, err = EnsureConfig(l); err != nil {
		return res, err
	}
	if res.DatabaseCreated, err = EnsureDatabase(l); err != nil {
		return res, err
	}
	return res, nil
}

// EnsureConfig writes mpd.conf unless it exists and reports whether it did.
func EnsureConfig(l paths.Layout) (bool, error) {
	return createOnce(l.Config(), Config(l.ModuleDir()))
}

// EnsureDatabase writes the placeholder mpddb unless it exists and reports
// whether it did.
func EnsureDatabase(l paths.Layout) (bool, error) {
	return createOnce(l.Database(), []byte(Database))
}

func createOnce(path string, data []byte) (bool, error) {
	err := atomicfile.CreateExclusive(path, data, 0o644)
	switch {
	case err == nil:
		slog.Info("created file", "path", path)
		return true, nil
	case errors.Is(err, fs.ErrExist):
		slog.Debug("file exists, leaving untouched", "path", path)
		return false, nil
	default:
		return false, fmt.Errorf("bootstrap %s: %w", path, err)
	}
}
