// Package romcatalog refreshes romid's checksum table from an upstream
// GitHub repository that tracks newly-identified ROM checksums as commits
// touching a CSV file, the way the ROM images themselves can't be
// redistributed but their checksums can.
package romcatalog

import (
	"context"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/google/go-github/v27/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"

	"github.com/pappadf/granny-smith-sub003/gserr"
	"github.com/pappadf/granny-smith-sub003/romid"
)

// Source identifies the upstream repository and the path within it of the
// checksum CSV (columns: checksum hex, size in bytes, model name).
type Source struct {
	Owner, Repo, Path, Ref string
}

// Client fetches and merges romid entries from a Source, collapsing
// concurrent Refresh calls into one request.
type Client struct {
	gh     *github.Client
	source Source
	group  singleflight.Group
}

// NewClient builds a Client authenticated with an optional GitHub access
// token (empty means unauthenticated, rate-limited access).
func NewClient(ctx context.Context, accessToken string, source Source) *Client {
	var gh *github.Client
	if accessToken == "" {
		gh = github.NewClient(nil)
	} else {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
		gh = github.NewClient(oauth2.NewClient(ctx, ts))
	}
	return &Client{gh: gh, source: source}
}

// Refresh fetches the current checksum CSV from the configured Source and
// merges any new rows into romid's in-memory table. Concurrent calls are
// collapsed into a single upstream fetch.
func (c *Client) Refresh(ctx context.Context) (added int, err error) {
	const op = "romcatalog.Refresh"
	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		content, _, _, err := c.gh.Repositories.GetContents(ctx, c.source.Owner, c.source.Repo, c.source.Path, &github.RepositoryContentGetOptions{
			Ref: c.source.Ref,
		})
		if err != nil {
			return nil, err
		}
		raw, err := content.GetContent()
		if err != nil {
			return nil, err
		}
		entries, err := parseCSV(raw)
		if err != nil {
			return nil, err
		}
		before := len(romid.Table())
		romid.AddEntries(entries)
		return len(romid.Table()) - before, nil
	})
	if err != nil {
		return 0, gserr.E(op, gserr.IOFailure, err)
	}
	return v.(int), nil
}

func parseCSV(raw string) ([]romid.Entry, error) {
	const op = "romcatalog.parseCSV"
	r := csv.NewReader(strings.NewReader(raw))
	r.FieldsPerRecord = 3
	rows, err := r.ReadAll()
	if err != nil {
		return nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("parsing checksum CSV: %w", err))
	}
	entries := make([]romid.Entry, 0, len(rows))
	for _, row := range rows {
		checksum, err := strconv.ParseUint(strings.TrimSpace(row[0]), 16, 32)
		if err != nil {
			return nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("row %v: bad checksum: %w", row, err))
		}
		size, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, gserr.E(op, gserr.InvalidArgument, xerrors.Errorf("row %v: bad size: %w", row, err))
		}
		entries = append(entries, romid.Entry{
			Checksum: uint32(checksum),
			Size:     size,
			Model:    strings.TrimSpace(row[2]),
		})
	}
	return entries, nil
}
