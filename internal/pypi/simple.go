package pypi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/errkind"
	"github.com/bilusteknoloji/pipg/internal/pypiname"
)

// SimpleMetadata is a PEP 503/691 simple-index project page: the list
// of files (wheels and sdists) a registry publishes for one project.
type SimpleMetadata struct {
	Name  string
	Files []File
}

// File is a single file entry from a simple-index project page.
type File struct {
	Filename       string
	URL            string
	Hashes         map[string]string
	RequiresPython string
	Yanked         bool
	YankedReason   string
	UploadTime     time.Time
}

// simpleJSON mirrors the PEP 691 JSON simple-index response shape.
type simpleJSON struct {
	Name  string           `json:"name"`
	Files []simpleJSONFile `json:"files"`
}

type simpleJSONFile struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Hashes         map[string]string `json:"hashes"`
	RequiresPython string            `json:"requires-python"`
	UploadTime     string            `json:"upload-time"`
	Yanked         jsonYanked        `json:"yanked"`
}

// jsonYanked decodes PEP 691's "yanked", which is either a bool or a
// string giving the reason.
type jsonYanked struct {
	reason string
	yanked bool
}

func (y *jsonYanked) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		y.yanked = b
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	y.yanked = true
	y.reason = s

	return nil
}

// Simple fetches the simple-index project page for name from indexURL,
// trying the PEP 691 JSON representation first and falling back to the
// PEP 503 HTML representation when the index does not speak JSON. When
// the Service was built WithCache, the parsed page is cached on disk
// and revalidated against the origin (If-None-Match / If-Modified-Since)
// instead of being refetched unconditionally on every call -- project
// pages are mutable (new releases, yanks), unlike the immutable files
// they list.
func (s *Service) Simple(ctx context.Context, name, indexURL string) (*SimpleMetadata, error) {
	normalized := pypiname.Normalize(name)

	base := strings.TrimRight(indexURL, "/")
	reqURL := base + "/" + normalized + "/"

	if s.cache == nil {
		return s.fetchSimple(ctx, normalized, reqURL)
	}

	source := cache.FreshnessSource{URL: reqURL, HTTPClient: s.httpClient}

	path, err := s.cache.GetOrRefresh(ctx, cache.Simple, normalized, source, func(ctx context.Context) (cache.FetchResult, error) {
		meta, etag, lastModified, err := s.fetchSimpleWithValidators(ctx, normalized, reqURL)
		if err != nil {
			return cache.FetchResult{}, err
		}

		data, err := json.Marshal(meta)
		if err != nil {
			return cache.FetchResult{}, fmt.Errorf("caching simple index for %s: %w", name, err)
		}

		return cache.FetchResult{Data: data, ETag: etag, LastModified: lastModified}, nil
	})
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cached simple index for %s: %w", name, err)
	}

	var meta SimpleMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding cached simple index for %s: %w", name, err)
	}

	return &meta, nil
}

func (s *Service) fetchSimple(ctx context.Context, normalized, reqURL string) (*SimpleMetadata, error) {
	meta, _, _, err := s.fetchSimpleWithValidators(ctx, normalized, reqURL)
	return meta, err
}

func (s *Service) fetchSimpleWithValidators(ctx context.Context, normalized, reqURL string) (meta *SimpleMetadata, etag, lastModified string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("building simple-index request for %s: %w", normalized, err)
	}

	req.Header.Set("Accept", "application/vnd.pypi.simple.v1+json, text/html;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", "", errkind.NewTransient(fmt.Sprintf("fetching simple index for %s", normalized), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", "", errkind.NewNotFound(normalized, fmt.Errorf("no such project at %s", reqURL))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, "", "", errkind.NewTransient(fmt.Sprintf("simple index for %s", normalized), fmt.Errorf("server error %d", resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, reqURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", errkind.NewTransient(fmt.Sprintf("reading simple index for %s", normalized), err)
	}

	contentType := resp.Header.Get("Content-Type")

	switch {
	case strings.Contains(contentType, "json"):
		meta, err = parseSimpleJSON(normalized, body)
	default:
		meta, err = parseSimpleHTML(normalized, resp.Request.URL, body)
	}

	if err != nil {
		return nil, "", "", err
	}

	return meta, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
}

func parseSimpleJSON(name string, body []byte) (*SimpleMetadata, error) {
	var doc simpleJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding simple index JSON for %s: %w", name, err)
	}

	meta := &SimpleMetadata{Name: name}

	for _, f := range doc.Files {
		uploadTime, _ := time.Parse(time.RFC3339, f.UploadTime)

		meta.Files = append(meta.Files, File{
			Filename:       f.Filename,
			URL:            f.URL,
			Hashes:         f.Hashes,
			RequiresPython: f.RequiresPython,
			Yanked:         f.Yanked.yanked,
			YankedReason:   f.Yanked.reason,
			UploadTime:     uploadTime,
		})
	}

	return meta, nil
}

// parseSimpleHTML scans a PEP 503 HTML index page for <a href> entries,
// resolving relative links against base and pulling PEP 503's data-*
// attributes (data-requires-python and data-yanked; data-dist-info-metadata
// is not read).
func parseSimpleHTML(name string, base *url.URL, body []byte) (*SimpleMetadata, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing simple index HTML for %s: %w", name, err)
	}

	meta := &SimpleMetadata{Name: name}

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if f, ok := fileFromAnchor(base, n); ok {
				meta.Files = append(meta.Files, f)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}

	visit(doc)

	return meta, nil
}

func fileFromAnchor(base *url.URL, n *html.Node) (File, bool) {
	var href, requiresPython string
	var yanked bool
	var yankedReason string

	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "data-requires-python":
			requiresPython = attr.Val
		case "data-yanked":
			yanked = true
			yankedReason = attr.Val
		}
	}

	if href == "" {
		return File{}, false
	}

	resolved := href
	if u, err := url.Parse(href); err == nil {
		resolved = base.ResolveReference(u).String()
	}

	filename := path.Base(strings.SplitN(resolved, "#", 2)[0])

	hashes := map[string]string{}
	if idx := strings.Index(resolved, "#"); idx >= 0 {
		if q, err := url.ParseQuery(resolved[idx+1:]); err == nil {
			for key, vals := range q {
				if len(vals) > 0 {
					hashes[key] = vals[0]
				}
			}
		}
	}

	text := strings.TrimSpace(textContent(n))
	if filename == "" || filename == "." {
		filename = text
	}

	return File{
		Filename:       filename,
		URL:            resolved,
		Hashes:         hashes,
		RequiresPython: requiresPython,
		Yanked:         yanked,
		YankedReason:   yankedReason,
	}, true
}

func textContent(n *html.Node) string {
	var b strings.Builder

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}

	visit(n)

	return b.String()
}

// rangedGETSupported checks whether a server honors byte-range
// requests, by issuing a HEAD and inspecting Accept-Ranges.
func rangedGETSupported(ctx context.Context, client *http.Client, fileURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.Header.Get("Accept-Ranges") == "bytes"
}

// FileMetadata fetches core metadata for f, first trying PEP 658's
// sibling ".metadata" file (always requested; f.Hashes is not checked
// for an advertised metadata hash), and otherwise falling back to a
// ranged GET of the wheel's central directory tail (inflating just the
// .dist-info/METADATA entry out of it), and finally a full download,
// matching spec.md's "best available strategy, cheapest first" policy.
func (s *Service) FileMetadata(ctx context.Context, f File) ([]byte, error) {
	metadataURL := f.URL + ".metadata"

	if data, err := s.getFull(ctx, metadataURL); err == nil {
		return data, nil
	}

	if !strings.HasSuffix(f.Filename, ".whl") {
		return s.getFull(ctx, f.URL)
	}

	if rangedGETSupported(ctx, s.httpClient, f.URL) {
		if data, err := s.metadataFromTail(ctx, f.URL); err == nil {
			return data, nil
		}
	}

	return s.getFull(ctx, f.URL)
}

// metadataFromTail fetches the last 64KB of fileURL -- large enough to
// hold the End Of Central Directory record and central directory for
// any wheel whose directory plus comment fits in that window -- then
// opens it as a zip archive and extracts just the .dist-info/METADATA
// entry, fetching that entry's own (much smaller) byte range rather
// than the whole wheel.
func (s *Service) metadataFromTail(ctx context.Context, fileURL string) ([]byte, error) {
	const tailSize = 64 * 1024

	tail, totalSize, err := s.getTail(ctx, fileURL, tailSize)
	if err != nil {
		return nil, err
	}

	ra := &rangedReaderAt{
		ctx:       ctx,
		client:    s.httpClient,
		url:       fileURL,
		totalSize: totalSize,
		tail:      tail,
		tailStart: totalSize - int64(len(tail)),
	}

	zr, err := zip.NewReader(ra, totalSize)
	if err != nil {
		return nil, fmt.Errorf("parsing central directory of %s: %w", fileURL, err)
	}

	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, ".dist-info/METADATA") {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s in %s: %w", zf.Name, fileURL, err)
		}
		defer func() { _ = rc.Close() }()

		return io.ReadAll(rc)
	}

	return nil, fmt.Errorf("no .dist-info/METADATA entry in %s", fileURL)
}

// rangedReaderAt presents a remote file as an io.ReaderAt, serving reads
// that fall entirely within the already-fetched tail from memory and
// issuing a fresh ranged GET for anything else (the local file header
// and compressed data of whichever entry the caller opens, which live
// earlier in the file than the tail).
type rangedReaderAt struct {
	ctx       context.Context
	client    *http.Client
	url       string
	totalSize int64
	tail      []byte
	tailStart int64
}

func (r *rangedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.tailStart && off+int64(len(p)) <= r.totalSize {
		n := copy(p, r.tail[off-r.tailStart:])
		if n < len(p) {
			return n, io.ErrUnexpectedEOF
		}

		return n, nil
	}

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return 0, err
	}

	end := off + int64(len(p)) - 1
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, errkind.NewTransient("fetching byte range", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("server did not honor range request: status %d", resp.StatusCode)
	}

	n, err := io.ReadFull(resp.Body, p)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, err
	}

	return n, nil
}

func (s *Service) getFull(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errkind.NewTransient("fetching file", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errkind.NewNotFound(fileURL, fmt.Errorf("not found"))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, fileURL)
	}

	return io.ReadAll(resp.Body)
}

// getTail performs a ranged GET for the last n bytes of fileURL -- where
// a ZIP's End Of Central Directory record and central directory live --
// and reports the file's total size from the response's Content-Range
// header, needed to translate the central directory's absolute offsets
// into indices within the returned tail.
func (s *Service) getTail(ctx context.Context, fileURL string, n int64) (tail []byte, totalSize int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Range", "bytes=-"+strconv.FormatInt(n, 10))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, errkind.NewTransient("fetching file tail", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, 0, fmt.Errorf("server did not honor range request: status %d", resp.StatusCode)
	}

	total, err := parseContentRangeSize(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, 0, fmt.Errorf("parsing Content-Range for %s: %w", fileURL, err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	return body, total, nil
}

// parseContentRangeSize extracts the total resource size from a
// "Content-Range: bytes start-end/total" header value.
func parseContentRangeSize(headerValue string) (int64, error) {
	idx := strings.LastIndex(headerValue, "/")
	if idx < 0 || idx == len(headerValue)-1 {
		return 0, fmt.Errorf("missing total size in %q", headerValue)
	}

	return strconv.ParseInt(headerValue[idx+1:], 10, 64)
}
