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

package googlephotos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/natural"
	"github.com/mholt/archives"
	"github.com/photoledger/photoledger/catalog"
	"go.uber.org/zap"
)

// TagReaderFS extracts EXIF tags from a file in a file system.
type TagReaderFS interface {
	ReadTagsFS(fsys fs.FS, name string) (*catalog.ExifTags, error)
}

// Options tune how a takeout is indexed.
type Options struct {
	// MatchTitles also pairs a media file with a sidecar that records the
	// file's name as its title, when there is no sidecar named exactly
	// after the file. Google truncates long names in exports, which breaks
	// exact pairing for such files.
	MatchTitles bool
}

// Takeout is an opened Google Takeout export of Google Photos. It may be
// a folder or an archive file. It implements catalog.Archive.
type Takeout struct {
	fsys fs.FS
	tags TagReaderFS
	opts Options
	log  *zap.Logger

	albumTitles []string

	// sidecars by the name of the media file they describe; byName is
	// keyed by the sidecar's own name minus ".json", byTitle by the
	// original file name recorded inside the sidecar
	byName  map[string]*catalog.Sidecar
	byTitle map[string]*catalog.Sidecar

	// paths of media files in fsys, by the same keys as above
	mediaByName  map[string]string
	mediaByTitle map[string]string

	// every media file present in fsys
	present map[string]struct{}

	// how many times each truncated file name has been seen
	truncatedNames map[string]int
}

// Opener returns a catalog.ArchiveOpener that opens takeouts and reads the
// EXIF tags of their media files with tags, which may be nil.
func Opener(tags TagReaderFS, opts Options) catalog.ArchiveOpener {
	return func(ctx context.Context, takeoutPath string) (catalog.Archive, error) {
		return OpenTakeout(ctx, takeoutPath, tags, opts)
	}
}

// OpenTakeout opens the takeout export at takeoutPath and indexes its
// sidecar files.
func OpenTakeout(ctx context.Context, takeoutPath string, tags TagReaderFS, opts Options) (*Takeout, error) {
	fsys, err := archives.FileSystem(ctx, takeoutPath, nil)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", takeoutPath, err)
	}
	return ReadTakeout(ctx, fsys, tags, opts)
}

// ReadTakeout indexes the takeout export in fsys.
func ReadTakeout(ctx context.Context, fsys fs.FS, tags TagReaderFS, opts Options) (*Takeout, error) {
	t := &Takeout{
		fsys:           fsys,
		tags:           tags,
		opts:           opts,
		log:            catalog.Log.Named("takeout"),
		byName:         make(map[string]*catalog.Sidecar),
		byTitle:        make(map[string]*catalog.Sidecar),
		mediaByName:    make(map[string]string),
		mediaByTitle:   make(map[string]string),
		present:        make(map[string]struct{}),
		truncatedNames: make(map[string]int),
	}

	var dirs []string
	err := fs.WalkDir(fsys, ".", func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, fpath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking takeout: %w", err)
	}
	sort.Slice(dirs, func(i, j int) bool { return natural.Less(dirs[i], dirs[j]) })

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.indexFolder(dir); err != nil {
			return nil, err
		}
	}

	t.log.Info("indexed takeout",
		zap.Int("albums", len(t.albumTitles)),
		zap.Int("sidecars", len(t.byName)),
		zap.Int("media_files", len(t.present)))

	return t, nil
}

func (t *Takeout) indexFolder(dir string) error {
	entries, err := fs.ReadDir(t.fsys, dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	// Google truncates long file names, and adds a uniqueness suffix to
	// repeated truncated names in what appears to be natural order by
	// length, so folder contents have to be visited in that same order
	// for sidecars to be matched to their media files.
	sort.Slice(entries, func(i, j int) bool {
		iName, jName := entries[i].Name(), entries[j].Name()
		iNameNoExt, jNameNoExt := strings.TrimSuffix(iName, path.Ext(iName)), strings.TrimSuffix(jName, path.Ext(jName))
		if len(iNameNoExt) != len(jNameNoExt) {
			return len(iNameNoExt) < len(jNameNoExt)
		}
		return natural.Less(iName, jName)
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		fpath := path.Join(dir, name)

		switch {
		case name == albumMetadataFilename:
			t.readAlbumMetadata(fpath)
		case path.Ext(name) == ".json":
			t.indexSidecar(fpath)
		case catalog.IsImageFile(name):
			t.present[fpath] = struct{}{}
		}
	}

	return nil
}

func (t *Takeout) indexSidecar(fpath string) {
	meta, err := t.readItemMetadata(fpath)
	if err != nil {
		t.log.Warn("unreadable sidecar", zap.String("path", fpath), zap.Error(err))
		return
	}
	sidecar := meta.sidecar()
	if sidecar.PhotoTakenTime.IsZero() {
		t.log.Debug("sidecar has no timestamp", zap.String("path", fpath))
	}

	stripped := strings.TrimSuffix(path.Base(fpath), ".json")
	if catalog.IsImageFile(stripped) {
		if _, dup := t.byName[stripped]; dup {
			t.log.Debug("duplicate sidecar name; keeping first", zap.String("path", fpath))
		} else {
			t.byName[stripped] = sidecar
			t.mediaByName[stripped] = path.Join(path.Dir(fpath), stripped)
		}
	}

	if !t.opts.MatchTitles || meta.Title == "" {
		return
	}

	mediaPath := t.determineMediaFilenameInArchive(fpath, meta)
	if catalog.IsImageFile(meta.Title) {
		if _, dup := t.byTitle[meta.Title]; !dup {
			t.byTitle[meta.Title] = sidecar
			t.mediaByTitle[meta.Title] = mediaPath
		}
	}
	t.log.Debug("mapped sidecar to target media file",
		zap.String("sidecar_file", fpath),
		zap.String("target_file", mediaPath))
}

// Sidecar returns the sidecar named exactly fileName+".json". With
// Options.MatchTitles, a sidecar that records fileName as its title is
// used when there is no such file.
func (t *Takeout) Sidecar(fileName string) (*catalog.Sidecar, bool) {
	if sc, ok := t.byName[fileName]; ok {
		return sc, true
	}
	if !t.opts.MatchTitles {
		return nil, false
	}
	sc, ok := t.byTitle[fileName]
	return sc, ok
}

// Tags returns the EXIF tags of the media file with the given name, or nil
// if the takeout does not contain it or its tags cannot be read.
func (t *Takeout) Tags(fileName string) *catalog.ExifTags {
	if t.tags == nil {
		return nil
	}
	for _, candidate := range []string{t.mediaByName[fileName], t.mediaByTitle[fileName]} {
		if candidate == "" {
			continue
		}
		if _, ok := t.present[candidate]; !ok {
			continue
		}
		tags, err := t.tags.ReadTagsFS(t.fsys, candidate)
		if err != nil {
			t.log.Warn("reading EXIF tags", zap.String("path", candidate), zap.Error(err))
			return nil
		}
		return tags
	}
	return nil
}

// AlbumTitles returns the titles of the albums in the takeout, in the
// order they were found.
func (t *Takeout) AlbumTitles() []string {
	return append([]string(nil), t.albumTitles...)
}

func (t *Takeout) readAlbumMetadata(fpath string) {
	f, err := t.fsys.Open(fpath)
	if err != nil {
		t.log.Warn("opening album metadata", zap.String("path", fpath), zap.Error(err))
		return
	}
	defer f.Close()

	var albumMeta albumArchiveMetadata
	if err := json.NewDecoder(f).Decode(&albumMeta); err != nil {
		t.log.Warn("decoding album metadata", zap.String("path", fpath), zap.Error(err))
		return
	}
	title := albumMeta.Title
	if title == "" {
		title = albumMeta.Description
	}
	if title != "" {
		t.albumTitles = append(t.albumTitles, title)
	}
}

func (t *Takeout) readItemMetadata(fpath string) (mediaArchiveMetadata, error) {
	f, err := t.fsys.Open(fpath)
	if err != nil {
		return mediaArchiveMetadata{}, err
	}
	defer f.Close()

	var meta mediaArchiveMetadata
	if err := json.NewDecoder(f).Decode(&meta); err != nil {
		return mediaArchiveMetadata{}, fmt.Errorf("decoding item metadata file %s: %w", fpath, err)
	}
	meta.parsedPhotoTakenTime, err = meta.timestamp()
	if err != nil && !errors.Is(err, errNoTimestamp) {
		return mediaArchiveMetadata{}, fmt.Errorf("parsing timestamp from item %s: %w", fpath, err)
	}
	return meta, nil
}

const albumMetadataFilename = "metadata.json"

type albumArchiveMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type archiveTimestamp struct {
	Timestamp string `json:"timestamp"`
	Formatted string `json:"formatted"`
}

type archiveGeoData struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Altitude      float64 `json:"altitude"`
	LatitudeSpan  float64 `json:"latitudeSpan"`
	LongitudeSpan float64 `json:"longitudeSpan"`
}

type mediaArchiveMetadata struct {
	Title                 string           `json:"title"`
	Description           string           `json:"description"`
	ImageViews            string           `json:"imageViews"`
	CreationTime          archiveTimestamp `json:"creationTime"`
	PhotoTakenTime        archiveTimestamp `json:"photoTakenTime"`
	PhotoLastModifiedTime archiveTimestamp `json:"photoLastModifiedTime"`
	GeoData               *archiveGeoData  `json:"geoData"`
	People                []struct {
		Name string `json:"name"`
	} `json:"people"`
	URL string `json:"url"`

	parsedPhotoTakenTime time.Time
}

func (m mediaArchiveMetadata) sidecar() *catalog.Sidecar {
	sc := &catalog.Sidecar{
		Title:          m.Title,
		Description:    m.Description,
		PhotoTakenTime: m.parsedPhotoTakenTime,
	}
	for _, p := range m.People {
		if p.Name != "" {
			sc.People = append(sc.People, catalog.Person{Name: p.Name})
		}
	}
	// zeros are kept as recorded; only a missing field means no location
	if geo := m.GeoData; geo != nil {
		sc.GeoData = &catalog.GeoData{
			Latitude:      geo.Latitude,
			Longitude:     geo.Longitude,
			Altitude:      geo.Altitude,
			LatitudeSpan:  geo.LatitudeSpan,
			LongitudeSpan: geo.LongitudeSpan,
		}
	}
	return sc
}

var errNoTimestamp = errors.New("no timestamp available")

// timestamp returns a timestamp derived from the metadata. It prefers the
// PhotoTakenTime, then the CreationTime, then the PhotoLastModifiedTime.
func (m mediaArchiveMetadata) timestamp() (time.Time, error) {
	ts := m.PhotoTakenTime.Timestamp
	if ts == "" {
		// if a photo is in multiple albums, this can differ between them
		ts = m.CreationTime.Timestamp
	}
	if ts == "" {
		ts = m.PhotoLastModifiedTime.Timestamp
	}
	if ts == "" {
		return time.Time{}, errNoTimestamp
	}
	parsed, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(parsed, 0).UTC(), nil
}

// determineMediaFilenameInArchive returns the path to the media file in the archive
// that is associated with the given JSON sidecar metadata filepath.
//
// Google Photos export truncates long filenames. This function uses a lexical approach
// with the help of some count state to assemble the image filename that can be used to
// read it in the archive.
func (t *Takeout) determineMediaFilenameInArchive(jsonFilePath string, itemMeta mediaArchiveMetadata) string {
	dir := path.Dir(jsonFilePath)

	titleExt := path.Ext(itemMeta.Title)
	transformedTitle := strings.ReplaceAll(itemMeta.Title, "&", "_")
	transformedTitle = strings.ReplaceAll(transformedTitle, "?", "_")
	titleWithoutExt := strings.TrimSuffix(transformedTitle, titleExt)

	// Google truncates filenames longer than this (sans extension)
	const truncateAt = 47

	// a "(N)" uniqueness suffix is inserted before the extension when the
	// truncated name was already used N times before in the same folder
	if len(titleWithoutExt) > truncateAt {
		truncatedTitleWithDir := path.Join(dir, titleWithoutExt[:truncateAt])
		fullTruncatedName := truncatedTitleWithDir + titleExt

		t.truncatedNames[fullTruncatedName]++
		seenCount := t.truncatedNames[fullTruncatedName]

		if seenCount == 1 {
			return fullTruncatedName
		}
		return fmt.Sprintf("%s(%d)%s", truncatedTitleWithDir, seenCount-1, titleExt)
	}

	return path.Join(dir, itemMeta.Title)
}

var _ catalog.Archive = (*Takeout)(nil)
