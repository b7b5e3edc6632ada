package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
)

// zipMagic starts every ZIP local file header.
var zipMagic = []byte("PK\x03\x04")

// download fetches the remote dataset within FetchTimeout and unpacks it
// when the server returns a ZIP archive.
func (a *Acquirer) download(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.RemoteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, application/zip, */*")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch: empty response body")
	}

	if bytes.HasPrefix(body, zipMagic) {
		return extractCSV(body)
	}
	return body, nil
}

// extractCSV returns the first CSV entry of a ZIP archive, by name order.
func extractCSV(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var csvFiles []*zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() && strings.EqualFold(path.Ext(f.Name), ".csv") {
			csvFiles = append(csvFiles, f)
		}
	}
	if len(csvFiles) == 0 {
		return nil, fmt.Errorf("no CSV files found in the downloaded archive")
	}
	sort.Slice(csvFiles, func(i, j int) bool { return csvFiles[i].Name < csvFiles[j].Name })

	rc, err := csvFiles[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", csvFiles[0].Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", csvFiles[0].Name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", csvFiles[0].Name)
	}
	return data, nil
}
