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
	"io"
	"time"
)

// RemoteAlbum is an album in the remote photo service.
type RemoteAlbum struct {
	ID              string
	Title           string
	ProductURL      string
	MediaItemsCount int
}

// RemoteItem is a media item as listed by the remote photo service.
// Width and height are strings because that is how the service
// reports them; they are coerced during normalization.
type RemoteItem struct {
	ID           string
	FileName     string
	ProductURL   string
	BaseURL      string
	MimeType     string
	CreationTime time.Time
	Width        string
	Height       string
}

// Sidecar is the per-file metadata record found in an archive export.
// It carries data that the live API does not expose.
type Sidecar struct {
	Title          string
	Description    string
	People         []Person
	GeoData        *GeoData
	PhotoTakenTime time.Time
}

// ExifDateTime is a structured EXIF timestamp.
type ExifDateTime struct {
	Year, Month, Day     int
	Hour, Minute, Second int
	Millisecond          int
}

// ExifDate is an EXIF creation date, which a tag source may supply either
// already broken into components, or as the raw "2006:01:02 15:04:05" string.
type ExifDate struct {
	Structured *ExifDateTime
	Raw        string
}

// ExifTags is the bag of EXIF values consumed from an image file.
// Absent values are nil.
type ExifTags struct {
	FileName     string
	MIMEType     string
	CreateDate   *ExifDate
	ImageWidth   *int
	ImageHeight  *int
	Orientation  *int
	GPSLatitude  *float64
	GPSLongitude *float64
	GPSAltitude  *float64
}

// RemoteSource is the remote photo service.
type RemoteSource interface {
	// AlbumByTitle returns the album with the given display name,
	// or nil if there is no such album.
	AlbumByTitle(ctx context.Context, title string) (*RemoteAlbum, error)

	// ListAlbumItems returns every item in the album, following pagination.
	ListAlbumItems(ctx context.Context, albumID string) ([]RemoteItem, error)

	// BatchGetItems returns fresh metadata, including byte URLs, for the
	// given item IDs. Callers must not exceed the service's batch limit.
	BatchGetItems(ctx context.Context, ids []string) ([]RemoteItem, error)

	// OpenBytes opens a stream of the bytes at a byte-serving URL.
	OpenBytes(ctx context.Context, url string) (io.ReadCloser, error)
}

// Archive is an opened archive export, indexed by media file name.
type Archive interface {
	// Sidecar returns the metadata sidecar for the media file with
	// exactly this file name, if the archive contains one.
	Sidecar(fileName string) (*Sidecar, bool)

	// Tags returns the EXIF tags of the media file, if the archive
	// contains the media file itself. It returns nil otherwise.
	Tags(fileName string) *ExifTags
}

// ArchiveOpener opens the archive export at path, which may be a folder
// or an archive file.
type ArchiveOpener func(ctx context.Context, path string) (Archive, error)

// TagReader extracts EXIF tags from a file on disk.
type TagReader interface {
	ReadTags(path string) (*ExifTags, error)
}
