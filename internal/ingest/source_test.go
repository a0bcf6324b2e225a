package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, lr *LineReader) []RawLine {
	t.Helper()
	var out []RawLine
	for lr.Next() {
		out = append(out, lr.Line())
	}
	require.NoError(t, lr.Err())
	return out
}

func TestLineReader_SkipsBlankAndHeaderLines(t *testing.T) {
	input := "\ufeffMATCH_ID|MARKET_ID|OUTCOME_ID|SPECIFIERS\r\n" +
		"\r\n" +
		"M1|MKT1|OUT1|'spec1'\r\n" +
		"   \n" +
		"MATCH_ID_REPEATED|x|y\n" +
		"M2|MKT9|OUT9"

	lr := NewLineReader(strings.NewReader(input), "test", DefaultHeaderSentinel)
	lines := readAll(t, lr)

	assert.Equal(t, []RawLine{
		{Number: 3, Text: "M1|MKT1|OUT1|'spec1'"},
		{Number: 6, Text: "M2|MKT9|OUT9"},
	}, lines)

	blank, headers := lr.Skipped()
	assert.Equal(t, 2, blank)
	assert.Equal(t, 2, headers)
	assert.Equal(t, int64(len(input)), lr.BytesRead())
}

func TestLineReader_EmptySentinelKeepsHeaders(t *testing.T) {
	lr := NewLineReader(strings.NewReader("MATCH_ID|A|B\nM1|A|B\n"), "test", "")
	lines := readAll(t, lr)

	require.Len(t, lines, 2)
	assert.Equal(t, "MATCH_ID|A|B", lines[0].Text)
}

func TestLineReader_ReplacesInvalidUTF8(t *testing.T) {
	lr := NewLineReader(strings.NewReader("M1|A\xff|B\n"), "test", DefaultHeaderSentinel)
	lines := readAll(t, lr)

	require.Len(t, lines, 1)
	assert.Equal(t, "M1|A\uFFFD|B", lines[0].Text)
}

func TestLineReader_LineTooLong(t *testing.T) {
	old := MaxLineSize
	MaxLineSize = 16
	t.Cleanup(func() { MaxLineSize = old })

	lr := NewLineReader(strings.NewReader("M1|A|B\n"+strings.Repeat("x", 64)+"\n"), "big.txt", "")

	require.True(t, lr.Next())
	assert.False(t, lr.Next())
	require.Error(t, lr.Err())
	assert.True(t, errors.Is(lr.Err(), ErrSourceUnavailable))
	assert.False(t, lr.Next(), "reader stays exhausted after an error")
}

func TestOpenSource_Locators(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	path := filepath.Join(dir, "data", "extract.txt")
	require.NoError(t, os.WriteFile(path, []byte("MATCH_ID|M|O\nM1|A|B\n"), 0o644))

	tests := []struct {
		name     string
		location string
		opts     SourceOptions
	}{
		{"plain path", path, SourceOptions{}},
		{"file url", "file://" + filepath.ToSlash(path), SourceOptions{}},
		{"file opaque", "file:" + filepath.ToSlash(path), SourceOptions{}},
		{"classpath", "classpath:data/extract.txt", SourceOptions{ResourceRoot: dir}},
		{"classpath leading slash", "classpath:/data/extract.txt", SourceOptions{ResourceRoot: dir}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.HeaderSentinel = DefaultHeaderSentinel
			lr, err := OpenSource(context.Background(), tt.location, tt.opts)
			require.NoError(t, err)
			defer lr.Close()

			lines := readAll(t, lr)
			require.Len(t, lines, 1)
			assert.Equal(t, "M1|A|B", lines[0].Text)
			assert.Equal(t, tt.location, lr.Location())
		})
	}
}

func TestOpenSource_Unavailable(t *testing.T) {
	tests := []struct {
		name     string
		location string
	}{
		{"empty", ""},
		{"missing file", filepath.Join(t.TempDir(), "nope.txt")},
		{"missing classpath resource", "classpath:does/not/exist.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenSource(context.Background(), tt.location, SourceOptions{ResourceRoot: t.TempDir()})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSourceUnavailable), "got %v", err)
		})
	}
}

func TestOpenSource_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("MATCH_ID|M|O\nM1|A|B\nM2|C|D\n"))
	}))
	defer srv.Close()
	client := srv.Client()
	defer client.CloseIdleConnections()

	opts := SourceOptions{HeaderSentinel: DefaultHeaderSentinel, HTTPClient: client}

	lr, err := OpenSource(context.Background(), srv.URL+"/extract.txt", opts)
	require.NoError(t, err)
	lines := readAll(t, lr)
	require.NoError(t, lr.Close())
	assert.Len(t, lines, 2)

	_, err = OpenSource(context.Background(), srv.URL+"/missing.txt", opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "404")
}

func TestLineReader_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("M1|A|B\n"), 0o644))

	lr, err := OpenSource(context.Background(), path, SourceOptions{})
	require.NoError(t, err)
	require.NoError(t, lr.Close())
	require.NoError(t, lr.Close())
}
