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

package plcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/photoledger/photoledger/catalog"
	"github.com/photoledger/photoledger/datasources/googlephotos"
	"github.com/photoledger/photoledger/datasources/media"
	"github.com/photoledger/photoledger/internal/oauth2client"
	"github.com/photoledger/photoledger/internal/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const lockFileName = ".photoledger.lock"

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce   sync.Once
	config       *catalog.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*catalog.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configPath, c.configExists, c.configErr = catalog.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// sessionOptions say what a command needs from its session.
type sessionOptions struct {
	// remote connects to Google Photos; it requires a saved token
	remote bool

	// exclusive takes the catalog lock, for commands that modify the catalog
	exclusive bool
}

// session holds the components that a command operates on.
type session struct {
	cfg        *catalog.Config
	store      *catalog.SQLiteStore
	content    *catalog.ContentStore
	tagger     *catalog.AutoTagger
	reconciler *catalog.Reconciler
	folders    *catalog.FolderImporter
	google     *googlephotos.Client
	limiter    *ratelimit.Limiter
	lock       *flock.Flock
	log        *zap.Logger
}

func (c *commandContext) openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg: cfg,
		log: catalog.Log.Named("cli"),
	}

	if err := os.MkdirAll(cfg.Paths.MediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media folder: %w", err)
	}

	if opts.exclusive {
		s.lock = flock.New(filepath.Join(cfg.Paths.MediaDir, lockFileName))
		ok, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire catalog lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("another photoledger process is modifying the catalog (lock: %s)", s.lock.Path())
		}
	}

	s.store, err = catalog.OpenSQLiteStore(ctx, cfg.Paths.DBPath)
	if err != nil {
		s.Close()
		return nil, err
	}

	var remote catalog.RemoteSource
	if opts.remote {
		s.google, err = s.connectGoogle()
		if err != nil {
			s.Close()
			return nil, err
		}
		remote = s.google
	}

	tags := media.NewExifReader(nil)

	s.content = catalog.NewContentStore(cfg.Paths.MediaDir, nil)
	s.tagger = catalog.NewAutoTagger(s.store, cfg.Keywords.RootNodeID, cfg.Keywords.PeopleNodeID)

	var downloader *catalog.Downloader
	if remote != nil {
		downloader = catalog.NewDownloader(remote, s.content, cfg.Download.BatchGetLimit, cfg.Download.Concurrency)
	}
	s.reconciler = catalog.NewReconciler(s.store, remote, googlephotos.Opener(tags, takeoutOptions(cfg)), s.tagger, downloader, s.content)
	s.reconciler.TakeoutsDir = cfg.Paths.TakeoutsDir
	s.folders = catalog.NewFolderImporter(s.store, s.content, tags)

	return s, nil
}

func (s *session) connectGoogle() (*googlephotos.Client, error) {
	g := s.cfg.Google
	if g.ClientID == "" || g.ClientSecret == "" {
		return nil, errors.New("missing Google OAuth client credentials: set client_id and client_secret in the [google] section of the config, or PHOTOLEDGER_CLIENT_ID and PHOTOLEDGER_CLIENT_SECRET")
	}

	s.limiter = ratelimit.New(ratelimit.Limit{
		RequestsPerHour: g.RequestsPerHour,
		BurstSize:       g.BurstSize,
	})

	hc, err := oauth2client.NewHTTPClient(oauth2client.GoogleConfig(g.ClientID, g.ClientSecret), g.TokenFile, s.limiter.RoundTripper(nil))
	if err != nil {
		return nil, fmt.Errorf("connecting to Google Photos: %w", err)
	}
	return googlephotos.NewClient(hc, g.APIBaseURL, g.UploadURL), nil
}

// Close releases the resources of the session.
func (s *session) Close() {
	s.limiter.Stop()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Error("closing catalog database", zap.Error(err))
		}
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("failed to release catalog lock", zap.Error(err))
		}
	}
}

// withSession opens a session for the duration of fn.
func (c *commandContext) withSession(cmd *cobra.Command, opts sessionOptions, fn func(context.Context, *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := c.openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func takeoutOptions(cfg *catalog.Config) googlephotos.Options {
	return googlephotos.Options{MatchTitles: cfg.Takeout.MatchTitles}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
