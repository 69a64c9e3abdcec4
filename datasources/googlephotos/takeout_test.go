package googlephotos

import (
	"archive/zip"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/photoledger/photoledger/catalog"
)

func TestDetermineMediaFilenameInArchive(t *testing.T) {
	tk := &Takeout{
		truncatedNames: make(map[string]int),
	}

	for i, test := range []struct {
		inputJSONFilePath string
		inputMeta         mediaArchiveMetadata
		expect            string
	}{
		{
			inputJSONFilePath: "15250796_10158125619575157_1421325151866375198.json",
			inputMeta:         mediaArchiveMetadata{Title: "15250796_10158125619575157_1421325151866375198_o.jpg"},
			expect:            "15250796_10158125619575157_1421325151866375198_.jpg",
		},
		{
			inputJSONFilePath: "IMG_20161204_194948.jpg.supplemental-metadata.json",
			inputMeta:         mediaArchiveMetadata{Title: "IMG_20161204_194948.jpg"},
			expect:            "IMG_20161204_194948.jpg",
		},
		{
			inputJSONFilePath: "Trip/IMG_20160819_201122-01.jpeg.supplemental-metad.json",
			inputMeta:         mediaArchiveMetadata{Title: "IMG_20160819_201122-01.jpeg"},
			expect:            "Trip/IMG_20160819_201122-01.jpeg",
		},
		{
			inputJSONFilePath: "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqr.json",
			inputMeta:         mediaArchiveMetadata{Title: "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqrst-1.jpg"},
			expect:            "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqrs.jpg",
		},
		{
			inputJSONFilePath: "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqr(1).json",
			inputMeta:         mediaArchiveMetadata{Title: "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqrst-2.jpg"},
			expect:            "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqrs(1).jpg",
		},
		{
			inputJSONFilePath: "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqr(2).json",
			inputMeta:         mediaArchiveMetadata{Title: "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqrst-3.jpg"},
			expect:            "abcdefghijklmnopqrstu-vwxyzabcde-fghijklmnopqrs(2).jpg",
		},
		{
			inputJSONFilePath: "Q&A?.jpg.json",
			inputMeta:         mediaArchiveMetadata{Title: "Q&A?.jpg"},
			expect:            "Q&A?.jpg",
		},
	} {
		if actual := tk.determineMediaFilenameInArchive(test.inputJSONFilePath, test.inputMeta); actual != test.expect {
			t.Errorf("Test %d (json_filename=%q title_from_meta=%q): Expected '%s' but got '%s'",
				i, test.inputJSONFilePath, test.inputMeta.Title, test.expect, actual)
		}
	}
}

func TestMetadataTimestamp(t *testing.T) {
	for i, test := range []struct {
		meta      mediaArchiveMetadata
		expect    time.Time
		expectErr error
	}{
		{
			meta:   mediaArchiveMetadata{PhotoTakenTime: archiveTimestamp{Timestamp: "1600000000"}, CreationTime: archiveTimestamp{Timestamp: "1"}},
			expect: time.Unix(1600000000, 0).UTC(),
		},
		{
			meta:   mediaArchiveMetadata{CreationTime: archiveTimestamp{Timestamp: "1500000000"}},
			expect: time.Unix(1500000000, 0).UTC(),
		},
		{
			meta:   mediaArchiveMetadata{PhotoLastModifiedTime: archiveTimestamp{Timestamp: "1400000000"}},
			expect: time.Unix(1400000000, 0).UTC(),
		},
		{
			meta:      mediaArchiveMetadata{},
			expectErr: errNoTimestamp,
		},
	} {
		actual, err := test.meta.timestamp()
		if !errors.Is(err, test.expectErr) {
			t.Errorf("Test %d: Expected error %v but got %v", i, test.expectErr, err)
			continue
		}
		if !actual.Equal(test.expect) {
			t.Errorf("Test %d: Expected '%s' but got '%s'", i, test.expect, actual)
		}
	}
}

func TestSidecarGeoData(t *testing.T) {
	for i, test := range []struct {
		meta   mediaArchiveMetadata
		expect *catalog.GeoData
	}{
		{
			meta:   mediaArchiveMetadata{},
			expect: nil,
		},
		{
			meta:   mediaArchiveMetadata{GeoData: &archiveGeoData{Latitude: 47.6, Longitude: -122.3, Altitude: 50}},
			expect: &catalog.GeoData{Latitude: 47.6, Longitude: -122.3, Altitude: 50},
		},
		{
			meta:   mediaArchiveMetadata{GeoData: &archiveGeoData{}},
			expect: &catalog.GeoData{},
		},
		{
			meta:   mediaArchiveMetadata{GeoData: &archiveGeoData{Latitude: 1, Longitude: 2, LatitudeSpan: 0.5, LongitudeSpan: 0.25}},
			expect: &catalog.GeoData{Latitude: 1, Longitude: 2, LatitudeSpan: 0.5, LongitudeSpan: 0.25},
		},
	} {
		actual := test.meta.sidecar().GeoData
		if (actual == nil) != (test.expect == nil) {
			t.Errorf("Test %d: Expected %+v but got %+v", i, test.expect, actual)
			continue
		}
		if actual != nil && *actual != *test.expect {
			t.Errorf("Test %d: Expected %+v but got %+v", i, *test.expect, *actual)
		}
	}
}

type fakeTagReader struct {
	reads []string
}

func (f *fakeTagReader) ReadTagsFS(_ fs.FS, name string) (*catalog.ExifTags, error) {
	f.reads = append(f.reads, name)
	if filepath.Base(name) == "broken.jpg" {
		return nil, errors.New("corrupt")
	}
	return &catalog.ExifTags{FileName: filepath.Base(name)}, nil
}

var takeoutFixture = fstest.MapFS{
	"Takeout/Google Photos/Summer/metadata.json": {
		Data: []byte(`{"title": "Summer"}`),
	},
	"Takeout/Google Photos/Summer/IMG_1.jpg.json": {
		Data: []byte(`{
			"title": "IMG_1.jpg",
			"description": "beach",
			"photoTakenTime": {"timestamp": "1600000000"},
			"geoData": {"latitude": 36.1, "longitude": -115.2, "altitude": 600},
			"geoDataExif": {"latitude": 1, "longitude": 1},
			"people": [{"name": "Ann"}, {"name": "Bob"}],
			"url": "https://photos.google.com/photo/1"
		}`),
	},
	"Takeout/Google Photos/Summer/IMG_1.jpg": {Data: []byte("jpeg")},
	"Takeout/Google Photos/Summer/IMG_2.jpg.supplemental-metadata.json": {
		Data: []byte(`{"title": "IMG_2.jpg", "photoTakenTime": {"timestamp": "1600000100"}}`),
	},
	"Takeout/Google Photos/Summer/IMG_2.jpg": {Data: []byte("jpeg")},
	"Takeout/Google Photos/Summer/VID_3.mp4.json": {
		Data: []byte(`{"title": "VID_3.mp4"}`),
	},
	"Takeout/Google Photos/Summer/only-sidecar.png.json": {
		Data: []byte(`{"title": "only-sidecar.png"}`),
	},
	"Takeout/Google Photos/Summer/broken.jpg.json": {
		Data: []byte(`{"title": "broken.jpg"}`),
	},
	"Takeout/Google Photos/Summer/broken.jpg":   {Data: []byte("not a jpeg")},
	"Takeout/Google Photos/Summer/garbage.json": {Data: []byte(`{not json`)},
	"Takeout/archive_browser.html":              {Data: []byte("<html></html>")},
}

func TestReadTakeout(t *testing.T) {
	tags := new(fakeTagReader)
	tk, err := ReadTakeout(context.Background(), takeoutFixture, tags, Options{})
	if err != nil {
		t.Fatalf("Reading takeout: %v", err)
	}

	if titles := tk.AlbumTitles(); len(titles) != 1 || titles[0] != "Summer" {
		t.Errorf("Expected album titles [Summer] but got %v", titles)
	}

	sc, ok := tk.Sidecar("IMG_1.jpg")
	if !ok {
		t.Fatalf("Expected sidecar for IMG_1.jpg")
	}
	if sc.Description != "beach" {
		t.Errorf("Expected description 'beach' but got '%s'", sc.Description)
	}
	if sc.GeoData == nil || sc.GeoData.Latitude != 36.1 || sc.GeoData.Altitude != 600 {
		t.Errorf("Expected the sidecar's geo data but got %+v", sc.GeoData)
	}
	if len(sc.People) != 2 || sc.People[0].Name != "Ann" || sc.People[1].Name != "Bob" {
		t.Errorf("Expected people [Ann Bob] but got %v", sc.People)
	}
	if want := time.Unix(1600000000, 0).UTC(); !sc.PhotoTakenTime.Equal(want) {
		t.Errorf("Expected taken time '%s' but got '%s'", want, sc.PhotoTakenTime)
	}

	// only named after its media file by title
	if sc, ok := tk.Sidecar("IMG_2.jpg"); ok {
		t.Errorf("Expected no sidecar for IMG_2.jpg without title matching but got %+v", sc)
	}

	if _, ok := tk.Sidecar("VID_3.mp4"); ok {
		t.Errorf("Expected no sidecar for a video")
	}
	if _, ok := tk.Sidecar("missing.jpg"); ok {
		t.Errorf("Expected no sidecar for a file not in the takeout")
	}

	if tg := tk.Tags("IMG_1.jpg"); tg == nil || tg.FileName != "IMG_1.jpg" {
		t.Errorf("Expected tags for IMG_1.jpg but got %+v", tg)
	}
	if tg := tk.Tags("only-sidecar.png"); tg != nil {
		t.Errorf("Expected nil tags when the media file is absent but got %+v", tg)
	}
	if tg := tk.Tags("broken.jpg"); tg != nil {
		t.Errorf("Expected nil tags when the tags cannot be read but got %+v", tg)
	}
	for _, read := range tags.reads {
		if filepath.Base(read) == "only-sidecar.png" {
			t.Errorf("Expected no tag read for an absent media file")
		}
	}
}

func TestOpenTakeoutFolder(t *testing.T) {
	dir := t.TempDir()
	album := filepath.Join(dir, "Google Photos", "Trip")
	if err := os.MkdirAll(album, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"P1.jpg.json": `{"title": "P1.jpg", "people": [{"name": "Cy"}]}`,
		"P1.jpg":      "jpeg",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(album, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	archive, err := Opener(nil, Options{})(context.Background(), dir)
	if err != nil {
		t.Fatalf("Opening takeout folder: %v", err)
	}
	sc, ok := archive.Sidecar("P1.jpg")
	if !ok || len(sc.People) != 1 || sc.People[0].Name != "Cy" {
		t.Errorf("Expected sidecar with person Cy but got %+v (found=%t)", sc, ok)
	}
	if tg := archive.Tags("P1.jpg"); tg != nil {
		t.Errorf("Expected nil tags without a tag reader but got %+v", tg)
	}
}

func TestOpenTakeoutZip(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "takeout-001.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, entry := range []struct {
		name, content string
	}{
		{"Takeout/", ""},
		{"Takeout/Google Photos/", ""},
		{"Takeout/Google Photos/Trip/", ""},
		{"Takeout/Google Photos/Trip/metadata.json", `{"title": "Trip"}`},
		{"Takeout/Google Photos/Trip/IMG_7.jpg.json", `{"title": "IMG_7.jpg", "description": "dunes", "geoData": {"latitude": 24.5, "longitude": 54.4}}`},
		{"Takeout/Google Photos/Trip/IMG_7.jpg", "jpeg"},
	} {
		w, err := zw.Create(entry.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entry.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	tk, err := OpenTakeout(context.Background(), zipPath, nil, Options{})
	if err != nil {
		t.Fatalf("Opening takeout zip: %v", err)
	}
	sc, ok := tk.Sidecar("IMG_7.jpg")
	if !ok {
		t.Fatalf("Expected a sidecar for IMG_7.jpg")
	}
	if sc.Description != "dunes" {
		t.Errorf("Expected description 'dunes' but got '%s'", sc.Description)
	}
	if sc.GeoData == nil || sc.GeoData.Latitude != 24.5 || sc.GeoData.Longitude != 54.4 {
		t.Errorf("Expected geo data 24.5,54.4 but got %+v", sc.GeoData)
	}
	titles := tk.AlbumTitles()
	if len(titles) != 1 || titles[0] != "Trip" {
		t.Errorf("Expected album titles [Trip] but got %v", titles)
	}
}

func TestSidecarExactName(t *testing.T) {
	fsys := fstest.MapFS{
		"Album/other_name.jpg.json": {Data: []byte(`{"title": "photo.jpg", "description": "titled elsewhere"}`)},
		"Album/photo.jpg":           {Data: []byte("jpeg")},
		"Album/untitled.jpg.json":   {Data: []byte(`{"description": "no title here"}`)},
		"Album/untitled.jpg":        {Data: []byte("jpeg")},
	}

	for i, test := range []struct {
		opts          Options
		fileName      string
		expectFound   bool
		expectDescrip string
	}{
		{opts: Options{}, fileName: "photo.jpg", expectFound: false},
		{opts: Options{}, fileName: "untitled.jpg", expectFound: true, expectDescrip: "no title here"},
		{opts: Options{}, fileName: "other_name.jpg", expectFound: true, expectDescrip: "titled elsewhere"},
		{opts: Options{MatchTitles: true}, fileName: "photo.jpg", expectFound: true, expectDescrip: "titled elsewhere"},
		{opts: Options{MatchTitles: true}, fileName: "untitled.jpg", expectFound: true, expectDescrip: "no title here"},
	} {
		tk, err := ReadTakeout(context.Background(), fsys, nil, test.opts)
		if err != nil {
			t.Fatalf("Test %d: Reading takeout: %v", i, err)
		}
		sc, ok := tk.Sidecar(test.fileName)
		if ok != test.expectFound {
			t.Errorf("Test %d: Expected found=%t for '%s' but got %t", i, test.expectFound, test.fileName, ok)
			continue
		}
		if ok && sc.Description != test.expectDescrip {
			t.Errorf("Test %d: Expected description '%s' but got '%s'", i, test.expectDescrip, sc.Description)
		}
	}
}

func TestMatchTitlesTruncatedName(t *testing.T) {
	longTitle := "a_very_long_file_name_that_google_will_truncate_in_the_export.jpg"
	truncated := longTitle[:47] + ".jpg"
	fsys := fstest.MapFS{
		"Album/" + truncated + ".json": {Data: []byte(`{"title": "` + longTitle + `"}`)},
		"Album/" + truncated:           {Data: []byte("jpeg")},
	}
	tags := new(fakeTagReader)
	tk, err := ReadTakeout(context.Background(), fsys, tags, Options{MatchTitles: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tk.Sidecar(longTitle); !ok {
		t.Errorf("Expected a sidecar for the full name with title matching")
	}
	if tg := tk.Tags(longTitle); tg == nil || tg.FileName != truncated {
		t.Errorf("Expected tags read from the truncated media file but got %+v", tg)
	}
}
