package catalog

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/zeebo/blake3"
)

func TestShardPath(t *testing.T) {
	for i, test := range []struct {
		id        string
		expect    string
		expectErr bool
	}{
		{id: "abc123XY", expect: filepath.Join("X", "Y")},
		{id: "AF1QipN", expect: filepath.Join("p", "N")},
		{id: "7", expect: filepath.Join("_", "7")},
		{id: "", expectErr: true},
		{id: "a/b", expectErr: true},
		{id: `a\b`, expectErr: true},
		{id: "abcé", expect: filepath.Join("c", "é")},
		{id: "photo日本", expect: filepath.Join("日", "本")},
		{id: "é", expect: filepath.Join("_", "é")},
		{id: "ab\xff", expectErr: true},
	} {
		actual, err := shardPath(test.id)
		if test.expectErr {
			if err == nil {
				t.Errorf("Test %d (%q): Expected an error", i, test.id)
			}
			continue
		}
		if err != nil {
			t.Errorf("Test %d (%q): Unexpected error: %v", i, test.id, err)
			continue
		}
		if actual != test.expect {
			t.Errorf("Test %d (%q): Expected '%s' but got '%s'", i, test.id, test.expect, actual)
		}
	}
}

func TestResolveDirIsDeterministic(t *testing.T) {
	base := t.TempDir()
	cs := NewContentStore(base, nil)

	dir, err := cs.ResolveDir("abc123XY")
	if err != nil {
		t.Fatal(err)
	}
	if expect := filepath.Join(base, "X", "Y"); dir != expect {
		t.Errorf("Expected '%s' but got '%s'", expect, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("Expected directory to exist: %v", err)
	}

	// a fresh store with a cold cache resolves to the same place
	other := NewContentStore(base, NewDirCache())
	again, err := other.ResolveDir("zzzXY")
	if err != nil {
		t.Fatal(err)
	}
	if again != dir {
		t.Errorf("Expected '%s' but got '%s'", dir, again)
	}

	dest, err := cs.DestinationPath("abc123XY", "IMG_0001.JPG")
	if err != nil {
		t.Fatal(err)
	}
	if expect := filepath.Join(dir, "abc123XY.JPG"); dest != expect {
		t.Errorf("Expected '%s' but got '%s'", expect, dest)
	}
}

func TestResolveDirAfterShardRemoved(t *testing.T) {
	cs := NewContentStore(t.TempDir(), nil)
	dir, err := cs.ResolveDir("abc123XY")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	again, err := cs.ResolveDir("abc123XY")
	if err != nil {
		t.Fatal(err)
	}
	if again != dir {
		t.Errorf("Expected '%s' but got '%s'", dir, again)
	}
	if info, err := os.Stat(again); err != nil || !info.IsDir() {
		t.Errorf("Expected the shard directory to be created again: %v", err)
	}
}

func TestWriteAfterShardRemoved(t *testing.T) {
	cs := NewContentStore(t.TempDir(), nil)
	dest, err := cs.DestinationPath("abc123XY", "a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	// the directory disappears between resolving and writing
	if err := os.RemoveAll(filepath.Dir(dest)); err != nil {
		t.Fatal(err)
	}

	checksum, n, err := cs.Write(dest, strings.NewReader("late bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len("late bytes")) || checksum != blake3Hex("late bytes") {
		t.Errorf("Expected %d bytes with checksum %s but got %d bytes with %s", len("late bytes"), blake3Hex("late bytes"), n, checksum)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "late bytes" {
		t.Errorf("Expected content 'late bytes' but got '%s' (err=%v)", data, err)
	}

	// destinations outside the store are not created
	outside := filepath.Join(t.TempDir(), "missing", "a.jpg")
	if _, _, err := cs.Write(outside, strings.NewReader("x")); err == nil {
		t.Errorf("Expected an error writing into a missing directory outside the store")
	}
}

func TestResolveDirConcurrent(t *testing.T) {
	cs := NewContentStore(t.TempDir(), nil)
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "item" + string(rune('a'+i%4)) + "Z"
			if _, err := cs.ResolveDir(id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.jpg")
	content := "pretend these are JPEG bytes"

	checksum, n, err := WriteFileAtomic(dest, strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(content)) {
		t.Errorf("Expected %d bytes written but got %d", len(content), n)
	}
	sum := blake3.Sum256([]byte(content))
	if expect := hex.EncodeToString(sum[:]); checksum != expect {
		t.Errorf("Expected checksum '%s' but got '%s'", expect, checksum)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("Expected no .part file to remain")
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != content {
		t.Errorf("Expected content '%s' but got '%s' (err=%v)", content, data, err)
	}
}

func TestCopyInLeavesSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "IMG_1.png")
	if err := os.WriteFile(src, []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}
	cs := NewContentStore(t.TempDir(), nil)

	dest, checksum, err := cs.CopyIn(src, "localid01", "IMG_1.png")
	if err != nil {
		t.Fatal(err)
	}
	if checksum == "" {
		t.Errorf("Expected a checksum")
	}
	if filepath.Base(dest) != "localid01.png" {
		t.Errorf("Expected destination file 'localid01.png' but got '%s'", filepath.Base(dest))
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("Expected source to remain: %v", err)
	}
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	busy := filepath.Join(dir, "busy")
	if err := os.MkdirAll(filepath.Join(busy, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	failures := NewContentStore(dir, nil).RemoveFiles([]string{file, filepath.Join(dir, "never-existed.jpg"), "", busy})
	if len(failures) != 1 || failures[0].Path != busy {
		t.Errorf("Expected one failure for '%s' but got %v", busy, failures)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("Expected '%s' to be removed", file)
	}
}
