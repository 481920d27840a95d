package romcatalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/pappadf/granny-smith-sub003/romid"
)

func TestParseCSVDecodesRows(t *testing.T) {
	csv := "4D1EEEE2,131072,Macintosh Plus Rev 4\n97221137,262144,Macintosh SE/30 Test\n"
	entries, err := parseCSV(csv)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Checksum != 0x4D1EEEE2 || entries[0].Size != 131072 || entries[0].Model != "Macintosh Plus Rev 4" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
}

func TestParseCSVRejectsMalformedChecksum(t *testing.T) {
	if _, err := parseCSV("not-hex,128,Bad\n"); err == nil {
		t.Error("expected error for malformed checksum")
	}
}

func TestRefreshMergesNewEntriesAndCollapsesConcurrentCalls(t *testing.T) {
	before := len(romid.Table())
	csv := "4D1EEEE3,131072,Macintosh Plus Rev 5\n"
	content := base64.StdEncoding.EncodeToString([]byte(csv))

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(map[string]string{
			"type":     "file",
			"encoding": "base64",
			"content":  content,
			"name":     "checksums.csv",
			"path":     "checksums.csv",
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(ctx, "", Source{Owner: "example", Repo: "roms", Path: "checksums.csv"})
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	c.gh.BaseURL = base

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.Refresh(ctx)
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	after := len(romid.Table())
	if after != before+1 {
		t.Errorf("table grew by %d entries, want 1", after-before)
	}
	if requests > 2 {
		t.Errorf("made %d upstream requests for 2 concurrent Refresh calls", requests)
	}
}
