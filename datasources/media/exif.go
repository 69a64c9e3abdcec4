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

// Package media reads the embedded metadata of image files.
package media

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cozy/goexif2/exif"
	"github.com/cozy/goexif2/mknote"
	"github.com/gabriel-vasile/mimetype"
	"github.com/photoledger/photoledger/catalog"
	"go.uber.org/zap"
)

func init() {
	exif.RegisterParsers(mknote.All...)
}

// sniffLen is how many leading bytes are used to detect the MIME type.
const sniffLen = 3072

// ExifReader extracts the EXIF tags that the catalog uses from image files.
type ExifReader struct {
	log *zap.Logger
}

// NewExifReader returns an ExifReader. If logger is nil, the process log is used.
func NewExifReader(logger *zap.Logger) *ExifReader {
	if logger == nil {
		logger = catalog.Log.Named("exif")
	}
	return &ExifReader{log: logger}
}

// ReadTags reads the tags of the file at path on disk.
func (r *ExifReader) ReadTags(filePath string) (*catalog.ExifTags, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.readTags(f, filepath.Base(filePath))
}

// ReadTagsFS reads the tags of the named file in fsys.
func (r *ExifReader) ReadTagsFS(fsys fs.FS, name string) (*catalog.ExifTags, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.readTags(f, path.Base(name))
}

// readTags never fails on missing or damaged EXIF data; such files
// simply yield fewer tags.
func (r *ExifReader) readTags(rd io.Reader, fileName string) (*catalog.ExifTags, error) {
	logger := r.log.With(zap.String("filename", fileName))
	tags := &catalog.ExifTags{FileName: fileName}

	br := bufio.NewReaderSize(rd, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	if len(head) > 0 {
		tags.MIMEType = mimetype.Detect(head).String()
		if i := strings.IndexByte(tags.MIMEType, ';'); i >= 0 {
			tags.MIMEType = tags.MIMEType[:i]
		}
	}

	ex, err := exif.Decode(br)
	if err != nil && (ex == nil || exif.IsCriticalError(err)) {
		logger.Debug("no usable EXIF data", zap.Error(err))
		return tags, nil
	}

	if s := firstString(ex, exif.DateTimeDigitized, exif.DateTimeOriginal, exif.DateTime); s != "" {
		tags.CreateDate = &catalog.ExifDate{Raw: s}
	}
	tags.ImageWidth = firstInt(ex, exif.PixelXDimension, exif.ImageWidth)
	tags.ImageHeight = firstInt(ex, exif.PixelYDimension, exif.ImageLength)
	tags.Orientation = firstInt(ex, exif.Orientation)

	if lat, lon, err := ex.LatLong(); err == nil && !math.IsNaN(lat) && !math.IsNaN(lon) {
		tags.GPSLatitude = &lat
		tags.GPSLongitude = &lon
	}
	if alt, ok := altitude(ex); ok {
		tags.GPSAltitude = &alt
	}

	return tags, nil
}

func firstString(ex *exif.Exif, fields ...exif.FieldName) string {
	for _, field := range fields {
		tag, err := ex.Get(field)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(strings.Trim(s, "\x00")); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(ex *exif.Exif, fields ...exif.FieldName) *int {
	for _, field := range fields {
		tag, err := ex.Get(field)
		if err != nil || tag.Count == 0 {
			continue
		}
		v, err := tag.Int(0)
		if err != nil {
			continue
		}
		return &v
	}
	return nil
}

// altitude returns the GPS altitude in meters; it is negative below sea level.
func altitude(ex *exif.Exif) (float64, bool) {
	tag, err := ex.Get(exif.GPSAltitude)
	if err != nil {
		return 0, false
	}
	rat, err := tag.Rat(0)
	if err != nil {
		return 0, false
	}
	alt, _ := rat.Float64()
	if math.IsInf(alt, 0) || math.IsNaN(alt) {
		return 0, false
	}
	if ref, err := ex.Get(exif.GPSAltitudeRef); err == nil && len(ref.Val) > 0 && ref.Val[0] == 1 {
		alt = -alt
	}
	return alt, true
}

var _ catalog.TagReader = (*ExifReader)(nil)
