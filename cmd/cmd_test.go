package plcmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/photoledger/photoledger/catalog"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeTestConfig writes a config that keeps everything inside a temp dir.
func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := "[paths]\n" +
		"media_dir = \"" + filepath.ToSlash(filepath.Join(dir, "media")) + "\"\n" +
		"takeouts_dir = \"" + filepath.ToSlash(filepath.Join(dir, "takeouts")) + "\"\n" +
		"import_dir = \"" + filepath.ToSlash(filepath.Join(dir, "import")) + "\"\n" +
		"db_path = \"" + filepath.ToSlash(filepath.Join(dir, "catalog.db")) + "\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path, dir
}

func TestResolveImportFolder(t *testing.T) {
	for i, test := range []struct {
		arg, expect string
	}{
		{"Summer", filepath.Join("/pictures", "Summer")},
		{"/elsewhere/Summer", "/elsewhere/Summer"},
		{"nested/Summer", "nested/Summer"},
		{".", "."},
	} {
		actual := resolveImportFolder("/pictures", test.arg)
		if actual != test.expect {
			t.Errorf("Test %d: Expected '%s' but got '%s'", i, test.expect, actual)
		}
	}
}

func TestRenderTable(t *testing.T) {
	if out := renderTable(nil, [][]string{{"x"}}, nil); out != "" {
		t.Errorf("Expected nothing without headers but got '%s'", out)
	}

	out := renderTable([]string{"ID", "File"}, [][]string{{"abc", "IMG_1.jpg"}, {"short"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"ID", "File", "abc", "IMG_1.jpg", "short"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain '%s':\n%s", want, out)
		}
	}

	var buf bytes.Buffer
	printTable(&buf, []string{"ID"}, nil, nil)
	if strings.TrimSpace(buf.String()) != "(none)" {
		t.Errorf("Expected '(none)' for an empty table but got '%s'", buf.String())
	}
}

func TestFailureRows(t *testing.T) {
	rows := failureRows([]catalog.ItemFailure{
		{ID: "item1", Err: errors.New("boom")},
		{Path: "/tmp/a.jpg", Err: errors.New("unreadable")},
	})
	expected := [][]string{{"item1", "boom"}, {"/tmp/a.jpg", "unreadable"}}
	for i := range expected {
		if strings.Join(rows[i], "|") != strings.Join(expected[i], "|") {
			t.Errorf("Test %d: Expected %v but got %v", i, expected[i], rows[i])
		}
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("Expected output to name '%s' but got '%s'", path, out)
	}
	if _, _, exists, err := catalog.Load(path); err != nil || !exists {
		t.Errorf("Expected the written config to load, got exists=%v err=%v", exists, err)
	}

	if _, err := runCommand(t, "config", "init", "--path", path); err == nil {
		t.Errorf("Expected an error when the config already exists")
	}
	if _, err := runCommand(t, "config", "init", "--path", path, "--overwrite"); err != nil {
		t.Errorf("Expected --overwrite to succeed but got %v", err)
	}
}

func TestConfigShowMasksSecret(t *testing.T) {
	path, _ := writeTestConfig(t)
	t.Setenv("PHOTOLEDGER_CLIENT_SECRET", "hunter2")

	out, err := runCommand(t, "--config", path, "--json", "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("Expected the client secret to be masked:\n%s", out)
	}
	var shown catalog.Config
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if shown.Google.ClientSecret != "(set)" {
		t.Errorf("Expected '(set)' but got '%s'", shown.Google.ClientSecret)
	}
}

func TestFoldersCommand(t *testing.T) {
	path, dir := writeTestConfig(t)
	for _, name := range []string{"Trip 10", "Trip 2", "Trip 1"} {
		if err := os.MkdirAll(filepath.Join(dir, "import", name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	out, err := runCommand(t, "--config", path, "--json", "folders")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if strings.Join(names, ",") != "Trip 1,Trip 2,Trip 10" {
		t.Errorf("Expected natural order but got %v", names)
	}
}

func TestKeywordsCommands(t *testing.T) {
	path, _ := writeTestConfig(t)

	if _, err := runCommand(t, "--config", path, "keywords", "init"); err != nil {
		t.Fatal(err)
	}
	out, err := runCommand(t, "--config", path, "keywords", "add", "Hiking")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Hiking") {
		t.Errorf("Expected output to mention the keyword but got '%s'", out)
	}

	out, err = runCommand(t, "--config", path, "--json", "keywords", "list")
	if err != nil {
		t.Fatal(err)
	}
	var kd catalog.KeywordData
	if err := json.Unmarshal([]byte(out), &kd); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}

	var hikingID string
	for _, kw := range kd.Keywords {
		if kw.Label == "Hiking" {
			hikingID = kw.KeywordID
		}
	}
	if hikingID == "" {
		t.Fatalf("Expected keyword 'Hiking' in %+v", kd.Keywords)
	}

	var root *catalog.KeywordNode
	for i := range kd.KeywordNodes {
		if kd.KeywordNodes[i].NodeID == catalog.DefaultRootNodeID {
			root = &kd.KeywordNodes[i]
		}
	}
	if root == nil {
		t.Fatalf("Expected the root node in %+v", kd.KeywordNodes)
	}
	if len(root.ChildrenNodeIDs) != 2 || root.ChildrenNodeIDs[0] != catalog.DefaultPeopleNodeID {
		t.Errorf("Expected the people node then the new node under the root but got %v", root.ChildrenNodeIDs)
	}

	out, err = runCommand(t, "--config", path, "keywords", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Hiking") {
		t.Errorf("Expected the tree to show 'Hiking':\n%s", out)
	}
}
