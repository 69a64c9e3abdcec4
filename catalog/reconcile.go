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
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MergeResult lists the IDs touched by a merge, by what happened to them.
type MergeResult struct {
	Inserted  []string `json:"inserted"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
	Deleted   []string `json:"deleted"`
}

// DeleteReport is the outcome of deleting media items.
type DeleteReport struct {
	Deleted      []string      `json:"deleted"`
	Missing      []string      `json:"missing,omitempty"`
	FileFailures []ItemFailure `json:"fileFailures,omitempty"`
}

// Reconciler keeps the catalog of an album in step with the remote album
// and its archive export.
type Reconciler struct {
	store       Store
	remote      RemoteSource
	openArchive ArchiveOpener
	tagger      *AutoTagger
	downloader  *Downloader
	content     *ContentStore

	// TakeoutsDir is the folder that relative takeout paths are relative to.
	TakeoutsDir string

	log *zap.Logger
	now func() time.Time
}

// NewReconciler returns a Reconciler. The downloader may be nil, in which
// case imports only record metadata.
func NewReconciler(store Store, remote RemoteSource, openArchive ArchiveOpener,
	tagger *AutoTagger, downloader *Downloader, content *ContentStore) *Reconciler {
	return &Reconciler{
		store:       store,
		remote:      remote,
		openArchive: openArchive,
		tagger:      tagger,
		downloader:  downloader,
		content:     content,
		log:         Log.Named("reconcile"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ImportFromTakeout brings the catalog of the album named albumName in line
// with the remote album, enriched with the archive export at takeoutPath.
// If the catalog has nothing for the album yet, every item is imported and
// auto-tagged; otherwise the catalog is merged with the current state of
// the album. Either way, bytes of items that are not local yet are
// downloaded afterward.
//
// If there is no album by that name, the result is nil and no error.
func (r *Reconciler) ImportFromTakeout(ctx context.Context, albumName, takeoutPath string) (*AddedTakeoutData, error) {
	logger := r.log.With(zap.String("album", albumName), zap.String("takeout", takeoutPath))

	album, err := r.remote.AlbumByTitle(ctx, albumName)
	if err != nil {
		return nil, fmt.Errorf("looking up album %q: %w", albumName, err)
	}
	if album == nil {
		logger.Warn("album not found")
		return nil, nil
	}
	logger = logger.With(zap.String("album_id", album.ID))

	remoteItems, err := r.remote.ListAlbumItems(ctx, album.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of album %s: %w", album.ID, err)
	}

	archive, err := r.openArchive(ctx, takeoutPath)
	if err != nil {
		return nil, fmt.Errorf("opening takeout %s: %w", takeoutPath, err)
	}

	existing, err := r.store.ListMediaItemsInAlbum(ctx, album.ID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog items of album %s: %w", album.ID, err)
	}

	current := r.currentItems(logger, album.ID, remoteItems, archive)

	var result *AddedTakeoutData
	if len(existing) == 0 {
		result, err = r.freshImport(ctx, current)
	} else {
		result, err = r.merge(ctx, current, existing)
	}
	if err != nil {
		return nil, err
	}

	if r.downloader != nil {
		stored, err := r.store.ListMediaItemsInAlbum(ctx, album.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading catalog items of album %s: %w", album.ID, err)
		}
		report, err := r.ensureBytes(ctx, withoutBytes(stored), false)
		if err != nil {
			return nil, err
		}
		result.Download = &report
	}

	logger.Info("takeout import complete",
		zap.Int("remote_items", len(remoteItems)),
		zap.Int("catalog_items", len(current)),
		zap.Bool("merged", result.Merge != nil))

	return result, nil
}

// currentItems builds the current truth for an album: every remote item
// that is an image and has a sidecar in the archive, normalized.
func (r *Reconciler) currentItems(logger *zap.Logger, albumID string, remoteItems []RemoteItem, archive Archive) []MediaItem {
	seen := make(map[string]struct{}, len(remoteItems))
	var items []MediaItem

	for i := range remoteItems {
		ri := &remoteItems[i]
		if _, dup := seen[ri.ID]; dup {
			continue
		}
		seen[ri.ID] = struct{}{}

		if !IsImageFile(ri.FileName) {
			logger.Debug("skipping non-image item", zap.String("id", ri.ID), zap.String("filename", ri.FileName))
			continue
		}
		sidecar, ok := archive.Sidecar(ri.FileName)
		if !ok {
			logger.Warn("no sidecar in takeout for item; skipping",
				zap.String("id", ri.ID),
				zap.String("filename", ri.FileName))
			continue
		}

		item := Normalize(ri, sidecar, archive.Tags(ri.FileName))
		item.AlbumID = albumID
		items = append(items, item)
	}

	return items
}

func (r *Reconciler) freshImport(ctx context.Context, items []MediaItem) (*AddedTakeoutData, error) {
	var names []string
	seen := make(map[string]struct{})
	for _, it := range items {
		for _, name := range it.PersonNames() {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}

	people, err := r.tagger.EnsurePersonKeywords(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("creating person keywords: %w", err)
	}

	for i := range items {
		for _, name := range items[i].PersonNames() {
			items[i].KeywordNodeIDs = append(items[i].KeywordNodeIDs, people.NodeIDByName[name])
		}
		if err := r.store.UpsertMediaItem(ctx, items[i]); err != nil {
			return nil, fmt.Errorf("adding media item %s: %w", items[i].ID, err)
		}
	}

	result := &AddedTakeoutData{AddedMediaItems: items}
	if !people.Created.Empty() {
		created := people.Created
		result.AddedKeywordData = &created
	}
	return result, nil
}

// merge writes every change before it deletes anything, so an interrupted
// merge never loses an item that is still in the album.
func (r *Reconciler) merge(ctx context.Context, current, existing []MediaItem) (*AddedTakeoutData, error) {
	catalogByID := make(map[string]MediaItem, len(existing))
	for _, it := range existing {
		catalogByID[it.ID] = it
	}
	currentIDs := make(map[string]struct{}, len(current))

	merge := new(MergeResult)
	var inserted []MediaItem

	for _, cur := range current {
		currentIDs[cur.ID] = struct{}{}

		old, ok := catalogByID[cur.ID]
		switch {
		case !ok:
			if err := r.store.UpsertMediaItem(ctx, cur); err != nil {
				return nil, fmt.Errorf("inserting media item %s: %w", cur.ID, err)
			}
			merge.Inserted = append(merge.Inserted, cur.ID)
			inserted = append(inserted, cur)
		case !cur.SameContent(old):
			// bytes are keyed by the immutable ID, and tags belong to the user
			cur.FilePath = old.FilePath
			cur.Checksum = old.Checksum
			cur.KeywordNodeIDs = old.KeywordNodeIDs
			if err := r.store.UpsertMediaItem(ctx, cur); err != nil {
				return nil, fmt.Errorf("updating media item %s: %w", cur.ID, err)
			}
			merge.Updated = append(merge.Updated, cur.ID)
		default:
			merge.Unchanged = append(merge.Unchanged, cur.ID)
		}
	}

	for _, old := range existing {
		if _, ok := currentIDs[old.ID]; !ok {
			merge.Deleted = append(merge.Deleted, old.ID)
		}
	}
	if len(merge.Deleted) > 0 {
		if err := r.store.DeleteMediaItems(ctx, merge.Deleted); err != nil {
			return nil, fmt.Errorf("deleting media items no longer in album: %w", err)
		}
	}

	r.log.Info("merged album",
		zap.Int("inserted", len(merge.Inserted)),
		zap.Int("updated", len(merge.Updated)),
		zap.Int("unchanged", len(merge.Unchanged)),
		zap.Int("deleted", len(merge.Deleted)))

	return &AddedTakeoutData{AddedMediaItems: inserted, Merge: merge}, nil
}

// ensureBytes downloads the items and records the new file paths in the catalog.
func (r *Reconciler) ensureBytes(ctx context.Context, items []MediaItem, overwrite bool) (DownloadReport, error) {
	if r.downloader == nil {
		return DownloadReport{}, errors.New("no downloader configured")
	}
	report := r.downloader.EnsureBytesLocal(ctx, items, overwrite)
	for i, it := range report.Items {
		if it.FilePath == "" || (it.FilePath == items[i].FilePath && it.Checksum == items[i].Checksum && !overwrite) {
			continue
		}
		if err := r.store.UpsertMediaItem(ctx, it); err != nil {
			return report, fmt.Errorf("recording file path of media item %s: %w", it.ID, err)
		}
	}
	return report, nil
}

func withoutBytes(items []MediaItem) []MediaItem {
	var out []MediaItem
	for _, it := range items {
		if it.FilePath == "" {
			out = append(out, it)
		}
	}
	return out
}

// DeleteMediaItems removes items from the catalog and their bytes from the
// content store. Each item is archived first so it can be restored. IDs
// that are not in the catalog are reported as missing. A file that cannot
// be removed does not stop the others from being removed.
func (r *Reconciler) DeleteMediaItems(ctx context.Context, ids []string) (DeleteReport, error) {
	var report DeleteReport
	var paths []string
	idByPath := make(map[string]string)

	for _, id := range ids {
		item, err := r.store.GetMediaItem(ctx, id)
		if errors.Is(err, ErrNotFound) {
			report.Missing = append(report.Missing, id)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("loading media item %s: %w", id, err)
		}
		if err := r.store.PutDeletedMediaItem(ctx, DeletedMediaItem{MediaItem: item, DeletedAt: r.now()}); err != nil {
			return report, fmt.Errorf("archiving media item %s: %w", id, err)
		}
		report.Deleted = append(report.Deleted, id)
		if item.FilePath != "" {
			paths = append(paths, item.FilePath)
			idByPath[item.FilePath] = id
		}
	}

	if len(report.Deleted) > 0 {
		if err := r.store.DeleteMediaItems(ctx, report.Deleted); err != nil {
			return report, fmt.Errorf("deleting media items: %w", err)
		}
	}

	report.FileFailures = r.content.RemoveFiles(paths)
	for i := range report.FileFailures {
		report.FileFailures[i].ID = idByPath[report.FileFailures[i].Path]
		r.log.Error("removing file of deleted media item",
			zap.String("id", report.FileFailures[i].ID),
			zap.String("path", report.FileFailures[i].Path),
			zap.Error(report.FileFailures[i].Err))
	}
	if len(report.Missing) > 0 {
		r.log.Warn("media items to delete were not in the catalog", zap.Strings("ids", report.Missing))
	}

	return report, nil
}

// ListDeletedMediaItems returns the archive of deleted items.
func (r *Reconciler) ListDeletedMediaItems(ctx context.Context) ([]DeletedMediaItem, error) {
	return r.store.ListDeletedMediaItems(ctx)
}

// RemoveDeletedMediaItem permanently forgets one deleted item.
func (r *Reconciler) RemoveDeletedMediaItem(ctx context.Context, id string) error {
	return r.store.RemoveDeletedMediaItem(ctx, id)
}

// ClearDeletedMediaItems permanently forgets every deleted item.
func (r *Reconciler) ClearDeletedMediaItems(ctx context.Context) error {
	return r.store.ClearDeletedMediaItems(ctx)
}

// RestoreDeletedMediaItem puts a deleted item back in the catalog. Its
// bytes were removed when it was deleted, so it has no file path until
// it is downloaded again. If no such deleted item exists, the result is
// nil and no error.
func (r *Reconciler) RestoreDeletedMediaItem(ctx context.Context, id string) (*MediaItem, error) {
	deleted, err := r.store.GetDeletedMediaItem(ctx, id)
	if errors.Is(err, ErrNotFound) {
		r.log.Warn("deleted media item not found", zap.String("id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading deleted media item %s: %w", id, err)
	}

	item := deleted.MediaItem
	item.FilePath = ""
	item.Checksum = ""
	if err := r.store.UpsertMediaItem(ctx, item); err != nil {
		return nil, fmt.Errorf("restoring media item %s: %w", id, err)
	}
	if err := r.store.RemoveDeletedMediaItem(ctx, id); err != nil {
		return nil, fmt.Errorf("removing restored item %s from deleted items: %w", id, err)
	}
	return &item, nil
}

// AddTakeout registers an archive export for the album named albumName.
func (r *Reconciler) AddTakeout(ctx context.Context, label, albumName, path string) (Takeout, error) {
	if albumName == "" || path == "" {
		return Takeout{}, errors.New("album name and path are required")
	}
	t := Takeout{
		ID:        uuid.NewString(),
		Label:     label,
		AlbumName: albumName,
		Path:      path,
	}
	if err := r.store.PutTakeout(ctx, t); err != nil {
		return Takeout{}, err
	}
	return t, nil
}

// ListTakeouts returns the registered archive exports.
func (r *Reconciler) ListTakeouts(ctx context.Context) ([]Takeout, error) {
	return r.store.ListTakeouts(ctx)
}

// ImportTakeoutByID imports a registered takeout. If there is no takeout
// with that ID, the result is nil and no error.
func (r *Reconciler) ImportTakeoutByID(ctx context.Context, takeoutID string) (*AddedTakeoutData, error) {
	t, err := r.store.GetTakeout(ctx, takeoutID)
	if errors.Is(err, ErrNotFound) {
		r.log.Warn("takeout not found", zap.String("takeout_id", takeoutID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading takeout %s: %w", takeoutID, err)
	}
	return r.ImportFromTakeout(ctx, t.AlbumName, r.takeoutPath(t))
}

func (r *Reconciler) takeoutPath(t Takeout) string {
	if filepath.IsAbs(t.Path) || r.TakeoutsDir == "" {
		return t.Path
	}
	return filepath.Join(r.TakeoutsDir, t.Path)
}

// RedownloadResult describes the bytes of an item fetched again.
type RedownloadResult struct {
	Item             MediaItem `json:"item"`
	PreviousChecksum string    `json:"previous_checksum,omitempty"`
	// Changed is true if a checksum was recorded before and the new bytes
	// do not match it.
	Changed bool `json:"changed"`
}

// Redownload fetches the bytes of one catalog item again. If the item is
// not in the catalog, the result is nil and no error.
func (r *Reconciler) Redownload(ctx context.Context, id string) (*RedownloadResult, error) {
	if r.downloader == nil {
		return nil, errors.New("no downloader configured")
	}
	item, err := r.store.GetMediaItem(ctx, id)
	if errors.Is(err, ErrNotFound) {
		r.log.Warn("media item to redownload not found", zap.String("id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading media item %s: %w", id, err)
	}

	updated, err := r.downloader.Redownload(ctx, item)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertMediaItem(ctx, updated); err != nil {
		return nil, fmt.Errorf("recording file path of media item %s: %w", id, err)
	}

	result := &RedownloadResult{
		Item:             updated,
		PreviousChecksum: item.Checksum,
		Changed:          item.Checksum != "" && item.Checksum != updated.Checksum,
	}
	if result.Changed {
		r.log.Info("redownloaded bytes differ from the previous copy",
			zap.String("id", id),
			zap.String("previous", item.Checksum),
			zap.String("current", updated.Checksum))
	}
	return result, nil
}

// DownloadAll makes sure the bytes of every catalog item that came from
// the remote service are local.
func (r *Reconciler) DownloadAll(ctx context.Context) (DownloadReport, error) {
	items, err := r.store.ListMediaItems(ctx)
	if err != nil {
		return DownloadReport{}, fmt.Errorf("loading catalog: %w", err)
	}
	var remoteItems []MediaItem
	for _, it := range items {
		if it.AlbumID != "" {
			remoteItems = append(remoteItems, it)
		}
	}
	return r.ensureBytes(ctx, remoteItems, false)
}
