package media

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/brianvoe/gofakeit/v7"
)

func TestReadTagsWithoutExif(t *testing.T) {
	dir := t.TempDir()
	jpegPath := filepath.Join(dir, "plain.jpg")
	if err := os.WriteFile(jpegPath, gofakeit.ImageJpeg(64, 48), 0o600); err != nil {
		t.Fatal(err)
	}

	tags, err := NewExifReader(nil).ReadTags(jpegPath)
	if err != nil {
		t.Fatal(err)
	}
	if tags.FileName != "plain.jpg" {
		t.Errorf("Expected file name 'plain.jpg' but got '%s'", tags.FileName)
	}
	if tags.MIMEType != "image/jpeg" {
		t.Errorf("Expected MIME type 'image/jpeg' but got '%s'", tags.MIMEType)
	}
	if tags.CreateDate != nil || tags.GPSLatitude != nil || tags.GPSLongitude != nil {
		t.Errorf("Expected no EXIF values but got %+v", tags)
	}
}

func TestReadTagsFS(t *testing.T) {
	fsys := fstest.MapFS{
		"Takeout/Album/note.jpg": &fstest.MapFile{Data: []byte("definitely not an image\n")},
		"Takeout/Album/pic.jpg":  &fstest.MapFile{Data: gofakeit.ImageJpeg(16, 16)},
	}
	reader := NewExifReader(nil)

	for i, test := range []struct {
		name         string
		expectMIME   string
		expectReadOK bool
	}{
		{name: "Takeout/Album/pic.jpg", expectMIME: "image/jpeg", expectReadOK: true},
		{name: "Takeout/Album/note.jpg", expectMIME: "text/plain", expectReadOK: true},
		{name: "Takeout/Album/missing.jpg"},
	} {
		tags, err := reader.ReadTagsFS(fsys, test.name)
		if !test.expectReadOK {
			if err == nil {
				t.Errorf("Test %d: Expected an error", i)
			}
			continue
		}
		if err != nil {
			t.Errorf("Test %d: Unexpected error: %v", i, err)
			continue
		}
		if tags.FileName != filepath.Base(test.name) {
			t.Errorf("Test %d: Expected file name '%s' but got '%s'", i, filepath.Base(test.name), tags.FileName)
		}
		if tags.MIMEType != test.expectMIME {
			t.Errorf("Test %d: Expected MIME type '%s' but got '%s'", i, test.expectMIME, tags.MIMEType)
		}
	}
}
