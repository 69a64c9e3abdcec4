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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/maruel/natural"
	"go.uber.org/zap"
)

// FolderImportReport is the outcome of importing a local folder.
type FolderImportReport struct {
	Imported   []MediaItem     `json:"imported"`
	Duplicates []DuplicateFile `json:"duplicates,omitempty"`
	Failures   []ItemFailure   `json:"failures,omitempty"`
}

// DuplicateFile is an imported file whose bytes match an item that was
// already in the catalog.
type DuplicateFile struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	SameAs string `json:"same_as"`
}

// FolderImporter adds the images in a local folder to the catalog.
type FolderImporter struct {
	store   Store
	content *ContentStore
	tags    TagReader
	log     *zap.Logger
}

// NewFolderImporter returns a FolderImporter.
func NewFolderImporter(store Store, content *ContentStore, tags TagReader) *FolderImporter {
	return &FolderImporter{
		store:   store,
		content: content,
		tags:    tags,
		log:     Log.Named("folder_import"),
	}
}

// ImportFolder imports every image file directly inside dir. Files are
// copied into the content store; the originals are not touched. Every
// file becomes a new catalog item, even if it was imported before; files
// whose bytes are already in the catalog are also listed as duplicates.
func (fi *FolderImporter) ImportFolder(ctx context.Context, dir string) (FolderImportReport, error) {
	var report FolderImportReport

	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("listing folder %s: %w", dir, err)
	}

	existing, err := fi.store.ListMediaItems(ctx)
	if err != nil {
		return report, fmt.Errorf("loading catalog: %w", err)
	}
	byChecksum := make(map[string]string, len(existing))
	for _, it := range existing {
		if it.Checksum != "" {
			byChecksum[it.Checksum] = it.ID
		}
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.Type().IsRegular() || !IsImageFile(entry.Name()) {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())

		item, err := fi.importFile(ctx, fullPath)
		if err != nil {
			fi.log.Error("importing file", zap.String("path", fullPath), zap.Error(err))
			report.Failures = append(report.Failures, ItemFailure{ID: item.ID, Path: fullPath, Err: err})
			continue
		}
		report.Imported = append(report.Imported, item)
		if sameAs, ok := byChecksum[item.Checksum]; ok {
			report.Duplicates = append(report.Duplicates, DuplicateFile{ID: item.ID, Path: fullPath, SameAs: sameAs})
		}
	}

	fi.log.Info("imported folder",
		zap.String("folder", dir),
		zap.Int("imported", len(report.Imported)),
		zap.Int("duplicates", len(report.Duplicates)),
		zap.Int("failed", len(report.Failures)))

	return report, nil
}

func (fi *FolderImporter) importFile(ctx context.Context, fullPath string) (MediaItem, error) {
	tags, err := fi.tags.ReadTags(fullPath)
	if err != nil {
		fi.log.Warn("no EXIF tags", zap.String("path", fullPath), zap.Error(err))
	}
	if tags == nil {
		tags = new(ExifTags)
	}
	tags.FileName = filepath.Base(fullPath)

	item := Normalize(nil, nil, tags)
	item.GeoData = ExtractGeoData(tags)

	dest, checksum, err := fi.content.CopyIn(fullPath, item.ID, item.FileName)
	if err != nil {
		return item, fmt.Errorf("copying into content store: %w", err)
	}
	item.FilePath = dest
	item.Checksum = checksum

	if err := fi.store.UpsertMediaItem(ctx, item); err != nil {
		return item, err
	}

	fi.log.Debug("imported file",
		zap.String("id", item.ID),
		zap.String("path", fullPath),
		zap.String("dest", dest))

	return item, nil
}

// ListImportFolders returns the names of the folders directly inside root,
// in natural order.
func ListImportFolders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing import folders in %s: %w", root, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return natural.Less(names[i], names[j])
	})
	return names, nil
}
