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
	"encoding/json"
	"slices"
	"time"
)

// MediaItem is the canonical, persisted representation of a single photo.
// Optional values are nil when absent; they are never stored as empty
// strings or zero numbers.
type MediaItem struct {
	// ID is the stable identity assigned by the remote source (or a
	// generated UUID for local-folder imports). It never changes.
	ID       string `json:"id"`
	FileName string `json:"fileName"`

	// AlbumID is empty for items that were imported from a local folder.
	AlbumID string `json:"albumId"`

	// FilePath is the location of the item's bytes in the content
	// store; it is empty until the bytes have been downloaded or copied.
	FilePath string `json:"filePath"`

	// Checksum is the hex-encoded BLAKE3 sum of the bytes at FilePath, as
	// they were when written. It is empty when unknown.
	Checksum string `json:"checksum,omitempty"`

	ProductURL *string `json:"productUrl"`

	// BaseURL is short-lived and must be refreshed before it is used.
	BaseURL *string `json:"baseUrl"`

	MimeType     *string    `json:"mimeType"`
	CreationTime *time.Time `json:"creationTime"`
	Width        *int       `json:"width"`
	Height       *int       `json:"height"`
	Orientation  *int       `json:"orientation"`
	Description  *string    `json:"description"`
	GeoData      *GeoData   `json:"geoData"`
	People       []Person   `json:"people"`

	// KeywordNodeIDs is ordered and may contain duplicates.
	KeywordNodeIDs []string `json:"keywordNodeIds"`
}

// GeoData is a location as reported by the archive sidecar or EXIF.
type GeoData struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Altitude      float64 `json:"altitude"`
	LatitudeSpan  float64 `json:"latitudeSpan"`
	LongitudeSpan float64 `json:"longitudeSpan"`
}

// Person is someone tagged in a photo.
type Person struct {
	Name string `json:"name"`
}

// SameContent reports whether two records describe the same photo with the
// same metadata. The local bytes and their checksum, the short-lived byte
// URL, and the keyword tags are not compared: they are local state, not
// remote metadata.
func (m MediaItem) SameContent(other MediaItem) bool {
	return m.ID == other.ID &&
		m.FileName == other.FileName &&
		m.AlbumID == other.AlbumID &&
		equalPtr(m.ProductURL, other.ProductURL) &&
		equalPtr(m.MimeType, other.MimeType) &&
		equalTime(m.CreationTime, other.CreationTime) &&
		equalPtr(m.Width, other.Width) &&
		equalPtr(m.Height, other.Height) &&
		equalPtr(m.Orientation, other.Orientation) &&
		equalPtr(m.Description, other.Description) &&
		equalPtr(m.GeoData, other.GeoData) &&
		slices.Equal(m.People, other.People)
}

// PersonNames returns the names of the people tagged in the item, in order.
func (m MediaItem) PersonNames() []string {
	names := make([]string, 0, len(m.People))
	for _, p := range m.People {
		names = append(names, p.Name)
	}
	return names
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Keyword types.
const (
	KeywordTypeUser   = "user"
	KeywordTypePerson = "person"
	KeywordTypeTBD    = "tbd"
)

// Keyword is a label in the controlled vocabulary.
type Keyword struct {
	KeywordID string `json:"keywordId"`
	Label     string `json:"label"`
	Type      string `json:"type"`
}

// KeywordNode places a keyword in the keyword tree. A keyword may be
// placed at more than one node.
type KeywordNode struct {
	NodeID          string   `json:"nodeId"`
	KeywordID       string   `json:"keywordId"`
	ParentNodeID    string   `json:"parentNodeId"`
	ChildrenNodeIDs []string `json:"childrenNodeIds"`
}

// KeywordData is a set of keywords and the nodes that place them.
type KeywordData struct {
	Keywords     []Keyword     `json:"keywords"`
	KeywordNodes []KeywordNode `json:"keywordNodes"`
	RootNodeID   string        `json:"rootNodeId,omitempty"`
}

// Empty returns true if there are no keywords or nodes.
func (kd KeywordData) Empty() bool {
	return len(kd.Keywords) == 0 && len(kd.KeywordNodes) == 0
}

// DeletedMediaItem is an archived copy of a media item that a user deleted,
// kept so the item can be restored later.
type DeletedMediaItem struct {
	MediaItem
	DeletedAt time.Time `json:"deletedAt"`
}

// Takeout is a registered archive export that corresponds to a remote album.
type Takeout struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	AlbumName string `json:"albumName"`
	Path      string `json:"path"`
}

// AddedTakeoutData describes what a fresh takeout import created.
type AddedTakeoutData struct {
	AddedKeywordData *KeywordData    `json:"addedKeywordData"`
	AddedMediaItems  []MediaItem     `json:"addedMediaItems"`
	Merge            *MergeResult    `json:"merge,omitempty"`
	Download         *DownloadReport `json:"download,omitempty"`
}

// ItemFailure records a failed operation on a single item; it does not
// abort the batch it occurred in.
type ItemFailure struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
	Err  error  `json:"-"`
}

func (f ItemFailure) Error() string {
	if f.ID != "" {
		return f.ID + ": " + f.Err.Error()
	}
	return f.Path + ": " + f.Err.Error()
}

func (f ItemFailure) Unwrap() error { return f.Err }

func (f ItemFailure) MarshalJSON() ([]byte, error) {
	var msg string
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		ID    string `json:"id,omitempty"`
		Path  string `json:"path,omitempty"`
		Error string `json:"error"`
	}{f.ID, f.Path, msg})
}

func ptr[T any](v T) *T { return &v }
