/*
	Photoledger
	Copyright (c) 2024 The Photoledger Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// Paths configures where things are kept on disk.
type Paths struct {
	MediaDir    string `toml:"media_dir"`
	TakeoutsDir string `toml:"takeouts_dir"`
	ImportDir   string `toml:"import_dir"`
	DBPath      string `toml:"db_path"`
}

// Google configures access to the Google Photos API.
type Google struct {
	APIBaseURL      string `toml:"api_base_url"`
	UploadURL       string `toml:"upload_url"`
	TokenFile       string `toml:"token_file"`
	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	RequestsPerHour int    `toml:"requests_per_hour"`
	BurstSize       int    `toml:"burst_size"`
}

// Download configures how item bytes are fetched.
type Download struct {
	BatchGetLimit int `toml:"batch_get_limit"`
	Concurrency   int `toml:"concurrency"`
}

// TakeoutOptions configures how takeout exports are read.
type TakeoutOptions struct {
	// MatchTitles pairs media files with sidecars by the title recorded in
	// the sidecar when no sidecar is named exactly after the file.
	MatchTitles bool `toml:"match_titles"`
}

// Keywords configures the scaffolding of the keyword tree.
type Keywords struct {
	RootNodeID   string `toml:"root_node_id"`
	PeopleNodeID string `toml:"people_node_id"`
}

// Logging configures the process log.
type Logging struct {
	Level string `toml:"level"`
}

// Config is the program configuration.
type Config struct {
	Paths    Paths          `toml:"paths"`
	Google   Google         `toml:"google"`
	Download Download       `toml:"download"`
	Takeout  TakeoutOptions `toml:"takeout"`
	Keywords Keywords       `toml:"keywords"`
	Log      Logging        `toml:"log"`
}

const (
	defaultAPIBaseURL      = "https://photoslibrary.googleapis.com/v1"
	defaultUploadURL       = "https://photoslibrary.googleapis.com/v1/uploads"
	defaultRequestsPerHour = 3600
	defaultBurstSize       = 10
)

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaDir:    "~/.local/share/photoledger/media",
			TakeoutsDir: "~/.local/share/photoledger/takeouts",
			ImportDir:   "~/Pictures",
			DBPath:      "~/.local/share/photoledger/catalog.db",
		},
		Google: Google{
			APIBaseURL:      defaultAPIBaseURL,
			UploadURL:       defaultUploadURL,
			TokenFile:       filepath.Join(filepath.Dir(DefaultConfigFilePath()), "token.json"),
			RequestsPerHour: defaultRequestsPerHour,
			BurstSize:       defaultBurstSize,
		},
		Download: Download{
			BatchGetLimit: DefaultBatchGetLimit,
			Concurrency:   DefaultConcurrency,
		},
		Keywords: Keywords{
			RootNodeID:   DefaultRootNodeID,
			PeopleNodeID: DefaultPeopleNodeID,
		},
		Log: Logging{Level: "info"},
	}
}

// DefaultConfigFilePath returns the path of the config file that is used
// when none is given.
func DefaultConfigFilePath() string {
	cfgDir, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(cfgDir, "photoledger", "config.toml")
	}
	cfgDir, err = os.UserHomeDir()
	if err == nil {
		return filepath.Join(cfgDir, ".photoledger", "config.toml")
	}
	return filepath.Join(".photoledger", "config.toml")
}

// Load reads the config file at path, or the default config file if path
// is empty. A missing file is not an error; the defaults are used. It
// returns the config, the path that was resolved, and whether that file
// existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigFilePath()
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := true
	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		exists = false
	} else if err != nil {
		return nil, "", false, fmt.Errorf("reading config: %w", err)
	}

	if exists {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parsing config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolved, exists, nil
}

func (c *Config) normalize() error {
	for _, p := range []struct {
		name string
		val  *string
	}{
		{"paths.media_dir", &c.Paths.MediaDir},
		{"paths.takeouts_dir", &c.Paths.TakeoutsDir},
		{"paths.import_dir", &c.Paths.ImportDir},
		{"paths.db_path", &c.Paths.DBPath},
		{"google.token_file", &c.Google.TokenFile},
	} {
		expanded, err := ExpandPath(strings.TrimSpace(*p.val))
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		*p.val = expanded
	}

	if c.Google.ClientID == "" {
		c.Google.ClientID = os.Getenv("PHOTOLEDGER_CLIENT_ID")
	}
	if c.Google.ClientSecret == "" {
		c.Google.ClientSecret = os.Getenv("PHOTOLEDGER_CLIENT_SECRET")
	}
	c.Google.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Google.APIBaseURL), "/")
	if c.Google.APIBaseURL == "" {
		c.Google.APIBaseURL = defaultAPIBaseURL
	}
	c.Google.UploadURL = strings.TrimSpace(c.Google.UploadURL)
	if c.Google.UploadURL == "" {
		c.Google.UploadURL = defaultUploadURL
	}

	if c.Keywords.RootNodeID == "" {
		c.Keywords.RootNodeID = DefaultRootNodeID
	}
	if c.Keywords.PeopleNodeID == "" {
		c.Keywords.PeopleNodeID = DefaultPeopleNodeID
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.MediaDir == "" {
		return errors.New("paths.media_dir must be set")
	}
	if c.Paths.DBPath == "" {
		return errors.New("paths.db_path must be set")
	}
	for name, raw := range map[string]string{
		"google.api_base_url": c.Google.APIBaseURL,
		"google.upload_url":   c.Google.UploadURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Google.RequestsPerHour < 0 {
		return errors.New("google.requests_per_hour must not be negative")
	}
	if c.Google.BurstSize < 0 {
		return errors.New("google.burst_size must not be negative")
	}
	if c.Download.BatchGetLimit < 1 || c.Download.BatchGetLimit > DefaultBatchGetLimit {
		return fmt.Errorf("download.batch_get_limit must be between 1 and %d", DefaultBatchGetLimit)
	}
	if c.Download.Concurrency < 1 {
		return errors.New("download.concurrency must be at least 1")
	}
	if c.Keywords.RootNodeID == c.Keywords.PeopleNodeID {
		return errors.New("keywords.root_node_id and keywords.people_node_id must differ")
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	return nil
}

// ExpandPath expands a leading "~" to the home directory and makes the
// path absolute. Empty paths stay empty.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolving absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a config file with the default settings to path.
func CreateSample(path string) error {
	sample, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encoding sample config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, sample, 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
