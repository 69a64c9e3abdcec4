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
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// exifDateLayout is how EXIF writes date-time values.
const exifDateLayout = "2006:01:02 15:04:05"

// imageExts are the file extensions that are recognized as images.
var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpe":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
	".heic": {},
	".heif": {},
	".dng":  {},
	".raw":  {},
	".nef":  {},
}

// IsImageFile returns true if the file name has an image extension.
func IsImageFile(name string) bool {
	_, ok := imageExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Normalize merges the remote listing record, the archive sidecar, and the
// EXIF tags of one photo into a MediaItem. Any of the three may be nil.
//
// The remote record wins for identity, file name, MIME type, creation
// time, and dimensions; EXIF fills in what the remote record lacks.
// Description, location, and people come only from the sidecar.
// The returned item has no album, file path, or keywords set.
func Normalize(remote *RemoteItem, sidecar *Sidecar, tags *ExifTags) MediaItem {
	var item MediaItem

	if remote != nil {
		item.ID = remote.ID
		item.FileName = remote.FileName
		item.ProductURL = stringOrNil(remote.ProductURL)
		item.BaseURL = stringOrNil(remote.BaseURL)
		item.MimeType = stringOrNil(remote.MimeType)
		if !remote.CreationTime.IsZero() {
			item.CreationTime = ptr(remote.CreationTime.UTC())
		}
		item.Width = parseIntOrNil(remote.Width)
		item.Height = parseIntOrNil(remote.Height)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	if tags != nil {
		if item.FileName == "" {
			item.FileName = tags.FileName
		}
		if item.MimeType == nil {
			item.MimeType = stringOrNil(tags.MIMEType)
		}
		if item.CreationTime == nil {
			item.CreationTime = exifCreateTime(tags.CreateDate)
		}
		if item.Width == nil {
			item.Width = copyPtr(tags.ImageWidth)
		}
		if item.Height == nil {
			item.Height = copyPtr(tags.ImageHeight)
		}
		item.Orientation = copyPtr(tags.Orientation)
	}

	if sidecar != nil {
		item.Description = stringOrNil(sidecar.Description)
		if sidecar.GeoData != nil {
			geo := *sidecar.GeoData
			item.GeoData = &geo
		}
		if len(sidecar.People) > 0 {
			item.People = append([]Person(nil), sidecar.People...)
		}
	}

	return item
}

// ExtractGeoData returns the GPS location in the EXIF tags, or nil if
// either coordinate is missing. Altitude defaults to 0.
func ExtractGeoData(tags *ExifTags) *GeoData {
	if tags == nil || tags.GPSLatitude == nil || tags.GPSLongitude == nil {
		return nil
	}
	geo := &GeoData{
		Latitude:  *tags.GPSLatitude,
		Longitude: *tags.GPSLongitude,
	}
	if tags.GPSAltitude != nil {
		geo.Altitude = *tags.GPSAltitude
	}
	return geo
}

// exifCreateTime converts an EXIF creation date to a UTC time. EXIF
// carries no zone, so the wall-clock values are taken as UTC.
func exifCreateTime(d *ExifDate) *time.Time {
	if d == nil {
		return nil
	}
	if s := d.Structured; s != nil {
		t := time.Date(s.Year, time.Month(s.Month), s.Day,
			s.Hour, s.Minute, s.Second, s.Millisecond*int(time.Millisecond), time.UTC)
		return &t
	}
	raw := strings.TrimSpace(d.Raw)
	if raw == "" {
		return nil
	}
	t, err := time.ParseInLocation(exifDateLayout, raw, time.UTC)
	if err != nil {
		Log.Warn("unparseable EXIF creation date", zap.String("value", raw), zap.Error(err))
		return nil
	}
	return &t
}

// parseIntOrNil returns nil for empty or non-numeric input.
func parseIntOrNil(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func stringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
