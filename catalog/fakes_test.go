package catalog

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zeebo/blake3"
)

const fakeByteHost = "https://bytes.example/"

func blake3Hex(s string) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// fakeRemote is an in-memory remote photo service.
type fakeRemote struct {
	mu         sync.Mutex
	albums     map[string]RemoteAlbum
	items      map[string][]RemoteItem
	content    map[string][]byte
	failBytes  map[string]bool
	batchCalls int
	batchIDs   [][]string
	openCalls  int
	openedURLs []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		albums:    make(map[string]RemoteAlbum),
		items:     make(map[string][]RemoteItem),
		content:   make(map[string][]byte),
		failBytes: make(map[string]bool),
	}
}

func (f *fakeRemote) addAlbum(title string, items ...RemoteItem) RemoteAlbum {
	f.mu.Lock()
	defer f.mu.Unlock()
	album := RemoteAlbum{ID: "album-" + strings.ToLower(strings.ReplaceAll(title, " ", "-")), Title: title}
	f.albums[title] = album
	f.items[album.ID] = items
	for _, it := range items {
		f.content[it.ID] = []byte("bytes of " + it.ID)
	}
	return album
}

func (f *fakeRemote) setItems(albumID string, items ...RemoteItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[albumID] = items
	for _, it := range items {
		if _, ok := f.content[it.ID]; !ok {
			f.content[it.ID] = []byte("bytes of " + it.ID)
		}
	}
}

func (f *fakeRemote) AlbumByTitle(_ context.Context, title string) (*RemoteAlbum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	album, ok := f.albums[title]
	if !ok {
		return nil, nil
	}
	return &album, nil
}

func (f *fakeRemote) ListAlbumItems(_ context.Context, albumID string) ([]RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RemoteItem(nil), f.items[albumID]...), nil
}

func (f *fakeRemote) BatchGetItems(_ context.Context, ids []string) ([]RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.batchIDs = append(f.batchIDs, append([]string(nil), ids...))
	var out []RemoteItem
	for _, id := range ids {
		if _, ok := f.content[id]; !ok {
			continue
		}
		out = append(out, RemoteItem{ID: id, BaseURL: fakeByteHost + id})
	}
	return out, nil
}

func (f *fakeRemote) OpenBytes(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	f.openedURLs = append(f.openedURLs, url)
	id := strings.TrimPrefix(url, fakeByteHost)
	if i := strings.IndexByte(id, '='); i >= 0 {
		id = id[:i]
	}
	if f.failBytes[id] {
		return nil, errors.New("HTTP 500")
	}
	data, ok := f.content[id]
	if !ok {
		return nil, fmt.Errorf("HTTP 404 for %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// fakeArchive is an opened archive export.
type fakeArchive struct {
	sidecars map[string]*Sidecar
	tags     map[string]*ExifTags
}

func (a *fakeArchive) Sidecar(fileName string) (*Sidecar, bool) {
	sc, ok := a.sidecars[fileName]
	return sc, ok
}

func (a *fakeArchive) Tags(fileName string) *ExifTags {
	return a.tags[fileName]
}

func (a *fakeArchive) opener() ArchiveOpener {
	return func(context.Context, string) (Archive, error) { return a, nil }
}

// countingStore counts the calls made to the store it wraps.
type countingStore struct {
	Store
	mu    sync.Mutex
	calls int
}

func (c *countingStore) count() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingStore) ListKeywords(ctx context.Context) ([]Keyword, error) {
	c.count()
	return c.Store.ListKeywords(ctx)
}

func (c *countingStore) ListKeywordNodes(ctx context.Context) ([]KeywordNode, error) {
	c.count()
	return c.Store.ListKeywordNodes(ctx)
}

func (c *countingStore) GetKeywordNode(ctx context.Context, nodeID string) (KeywordNode, error) {
	c.count()
	return c.Store.GetKeywordNode(ctx, nodeID)
}

func (c *countingStore) PutKeyword(ctx context.Context, kw Keyword) error {
	c.count()
	return c.Store.PutKeyword(ctx, kw)
}

func (c *countingStore) PutKeywordNode(ctx context.Context, node KeywordNode) error {
	c.count()
	return c.Store.PutKeywordNode(ctx, node)
}

// fakeRemoteItems returns n image items with unique IDs and file names.
func fakeRemoteItems(n int) []RemoteItem {
	items := make([]RemoteItem, n)
	for i := range items {
		items[i] = RemoteItem{
			ID:           fmt.Sprintf("AF1Q%d%02d", gofakeit.Number(100000, 999999), i),
			FileName:     fmt.Sprintf("IMG_%04d.jpg", i+1),
			ProductURL:   gofakeit.URL(),
			MimeType:     "image/jpeg",
			CreationTime: gofakeit.Date(),
			Width:        fmt.Sprint(gofakeit.Number(640, 4000)),
			Height:       fmt.Sprint(gofakeit.Number(480, 3000)),
		}
	}
	return items
}

// sidecarsFor returns an archive with a sidecar for every item, each
// tagged with one of the given people (if any).
func sidecarsFor(items []RemoteItem, people ...string) *fakeArchive {
	a := &fakeArchive{sidecars: make(map[string]*Sidecar), tags: make(map[string]*ExifTags)}
	for i, it := range items {
		sc := &Sidecar{Title: it.FileName, Description: "Trip to " + gofakeit.City()}
		if len(people) > 0 {
			sc.People = []Person{{Name: people[i%len(people)]}}
		}
		a.sidecars[it.FileName] = sc
	}
	return a
}

func itemIDs(items []MediaItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func mustInitKeywords(t *testing.T, store Store) *AutoTagger {
	t.Helper()
	tagger := NewAutoTagger(store, "", "")
	if err := tagger.InitializeKeywordTree(context.Background()); err != nil {
		t.Fatalf("Initializing keyword tree: %v", err)
	}
	return tagger
}
