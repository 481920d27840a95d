package blockarchive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"block_count":16,"block_size":512}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "00000000.dat"), bytes.Repeat([]byte{0xAA}, 512), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "rollback"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rollback", "00000000.pre"), bytes.Repeat([]byte{0xBB}, 512), 0644); err != nil {
		t.Fatal(err)
	}
}

func assertRoundTrip(t *testing.T, gzip bool) {
	t.Helper()
	src := t.TempDir()
	writeFixture(t, src)

	var buf bytes.Buffer
	if err := Export(src, &buf, gzip); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if err := Import(&buf, dst, gzip); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"meta.json", "00000000.dat", filepath.Join("rollback", "00000000.pre")} {
		wantPath := filepath.Join(src, rel)
		gotPath := filepath.Join(dst, rel)
		want, err := os.ReadFile(wantPath)
		if err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(gotPath)
		if err != nil {
			t.Fatalf("reading %s: %v", gotPath, err)
		}
		if !bytes.Equal(want, got) {
			t.Errorf("%s round trip mismatch", rel)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	assertRoundTrip(t, false)
}

func TestExportImportRoundTripGzip(t *testing.T) {
	assertRoundTrip(t, true)
}

func TestImportRejectsNonEmptyStorageDir(t *testing.T) {
	src := t.TempDir()
	writeFixture(t, src)
	var buf bytes.Buffer
	if err := Export(src, &buf, false); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	writeFixture(t, dst) // already has a meta.json
	if err := Import(&buf, dst, false); err == nil {
		t.Error("expected Import to reject a directory that already has meta.json")
	}
}
