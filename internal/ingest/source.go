package ingest

// source.go resolves a resource locator and exposes it as a lazy sequence of
// non-blank, non-header lines.
//
// Supported locators:
//
//	/abs/path.txt, rel/path.txt   local file
//	file:/path, file:///path      local file
//	classpath:data/file.txt       file under SourceOptions.ResourceRoot
//	http://..., https://...       streamed GET, non-2xx fails
//	-                             standard input
//
// Lines are cleaned on the fly: a leading UTF-8 BOM is dropped, a trailing
// CR is removed and invalid UTF-8 is replaced with U+FFFD.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultHeaderSentinel identifies header lines in the extract.
const DefaultHeaderSentinel = "MATCH_ID"

// MaxLineSize is the longest line the reader accepts.
var MaxLineSize = 1024 * 1024

const utf8BOM = "\ufeff"

// SourceOptions configures how a locator is opened and filtered.
type SourceOptions struct {
	// HeaderSentinel marks header lines; "" disables header skipping.
	HeaderSentinel string

	// ResourceRoot resolves classpath: locators; "" means the working directory.
	ResourceRoot string

	// HTTPClient fetches http(s) locators; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// LineReader is a forward-only, single-use line sequence.
//
//	for lr.Next() {
//	    line := lr.Line()
//	}
//	if err := lr.Err(); err != nil { ... }
type LineReader struct {
	location string
	sentinel string

	closer  io.Closer
	counter *countingReader
	scanner *bufio.Scanner

	lineNo  int
	line    RawLine
	err     error
	blank   int
	headers int
}

// OpenSource opens location and returns a LineReader over it.
// Every failure matches ErrSourceUnavailable.
func OpenSource(ctx context.Context, location string, opts SourceOptions) (*LineReader, error) {
	rc, err := openLocation(ctx, location, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, location, err)
	}
	lr := NewLineReader(rc, location, opts.HeaderSentinel)
	lr.closer = rc
	return lr, nil
}

// NewLineReader wraps r. The caller keeps ownership of r.
func NewLineReader(r io.Reader, location, headerSentinel string) *LineReader {
	counter := &countingReader{r: r}
	scanner := bufio.NewScanner(counter)
	scanner.Buffer(make([]byte, 0, min(64*1024, MaxLineSize)), MaxLineSize)

	return &LineReader{
		location: location,
		sentinel: headerSentinel,
		counter:  counter,
		scanner:  scanner,
	}
}

func openLocation(ctx context.Context, location string, opts SourceOptions) (io.ReadCloser, error) {
	switch {
	case location == "":
		return nil, fmt.Errorf("empty location")
	case location == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return openHTTP(ctx, location, opts.HTTPClient)
	case strings.HasPrefix(location, "classpath:"):
		root := opts.ResourceRoot
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("get working directory: %w", err)
			}
			root = wd
		}
		rel := strings.TrimLeft(strings.TrimPrefix(location, "classpath:"), "/")
		return os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	case strings.HasPrefix(location, "file:"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse file url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return os.Open(filepath.FromSlash(path))
	default:
		return os.Open(location)
	}
}

func openHTTP(ctx context.Context, location string, client *http.Client) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// Next advances to the next accepted line.
// It returns false at end of input or on a read error; check Err.
func (r *LineReader) Next() bool {
	if r.err != nil {
		return false
	}

	for r.scanner.Scan() {
		r.lineNo++
		text := r.scanner.Text()
		if r.lineNo == 1 {
			text = strings.TrimPrefix(text, utf8BOM)
		}
		text = strings.TrimSuffix(text, "\r")
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "\uFFFD")
		}

		if strings.TrimSpace(text) == "" {
			r.blank++
			continue
		}
		if r.sentinel != "" && strings.HasPrefix(text, r.sentinel) {
			r.headers++
			continue
		}

		r.line = RawLine{Number: r.lineNo, Text: text}
		return true
	}

	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("%w: read %s at line %d: %w", ErrSourceUnavailable, r.location, r.lineNo+1, err)
	}
	return false
}

// Line returns the line produced by the last successful Next.
func (r *LineReader) Line() RawLine { return r.line }

// Err returns the first read error, if any.
func (r *LineReader) Err() error { return r.err }

// BytesRead returns the number of raw bytes consumed so far.
func (r *LineReader) BytesRead() int64 { return r.counter.n }

// Skipped returns the number of blank and header lines skipped so far.
func (r *LineReader) Skipped() (blank, headers int) { return r.blank, r.headers }

// Location returns the locator the reader was opened with.
func (r *LineReader) Location() string { return r.location }

// Close releases the underlying resource.
func (r *LineReader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// countingReader tracks bytes read for progress reporting.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
