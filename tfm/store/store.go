package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tfmlabs/tfmd/config"
	"github.com/tfmlabs/tfmd/httputil"
	"github.com/tfmlabs/tfmd/ratelimit"
	"github.com/tfmlabs/tfmd/tfm"
)

// minCacheSize is the smallest byte count a cached file can have and still
// be treated as a real track rather than an error page that slipped through.
const minCacheSize = 1000

// truncationTolerance is how much of the announced size a download must
// reach to be accepted. Some servers round Content-Length up to a block
// boundary, so an exact match cannot be demanded.
const truncationTolerance = 0.99

var (
	// ErrUnexpectedContentType is returned when the server answers a track
	// download with an HTML page, typically a login or error screen.
	ErrUnexpectedContentType = errors.New("server returned a non-audio response")

	// ErrEmptyDownload is returned when the response body had no bytes.
	ErrEmptyDownload = errors.New("downloaded track is empty")
)

// TruncatedDownloadError reports a body that fell short of the size the
// server or the catalog announced.
type TruncatedDownloadError struct {
	Got      int64
	Expected int64
}

func (e *TruncatedDownloadError) Error() string {
	return fmt.Sprintf("truncated download: got %d of %d bytes", e.Got, e.Expected)
}

// WriteError reports a cache write whose on-disk outcome did not match the
// bytes handed to it. The partial file is already deleted when this is seen.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to store track at %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Descriptor identifies one track to resolve: where it might already exist
// locally, where to download it from, and how large it should be.
type Descriptor struct {
	ID        string
	Name      string
	URL       string
	Size      int64
	LocalPath string
}

// FromEntry builds a download descriptor for a catalog file entry.
func FromEntry(c *tfm.Client, e tfm.Entry) Descriptor {
	downloadURL := e.DownloadURL
	if downloadURL == "" {
		downloadURL = c.DownloadURL(e.ChannelID, e.ID)
	} else if strings.HasPrefix(downloadURL, "/") {
		downloadURL = c.ServerURL() + downloadURL
	}
	return Descriptor{
		ID:        e.ID,
		Name:      e.Name,
		URL:       downloadURL,
		Size:      e.Size,
		LocalPath: e.Path,
	}
}

// Result is the outcome of one descriptor in a batch resolve.
type Result struct {
	Descriptor Descriptor
	Path       string
	Err        error
}

// Store resolves track descriptors to verified files under a cache
// directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

func New(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); nil != err {
		return nil, fmt.Errorf("failed to create cache directory %s: %v", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// CachePath returns where a descriptor's track lives in the cache, whether
// or not it has been downloaded yet.
func (s *Store) CachePath(d Descriptor) string {
	return filepath.Join(s.dir, cacheFileName(d))
}

// Resolve returns a local path holding the descriptor's track, downloading
// and verifying it when no usable copy exists. A valid cached file is
// returned without any network I/O.
func (s *Store) Resolve(ctx context.Context, d Descriptor) (string, error) {
	cachePath := s.CachePath(d)
	if s.isValidCache(cachePath, d.Size) {
		s.logger.Debug().Str("path", cachePath).Msg("Track served from cache")
		return cachePath, nil
	}
	// A stale or undersized cached file is removed up front so a failed
	// download cannot leave it behind to be probed again.
	_ = os.Remove(cachePath)

	if local, ok := s.knownLocal(d); ok {
		return local, nil
	}

	body, err := s.download(ctx, d)
	if nil != err {
		return "", err
	}

	if err := s.write(cachePath, body); nil != err {
		return "", err
	}

	s.logger.Info().
		Str("track", d.Name).
		Str("path", cachePath).
		Int("size", len(body)).
		Msg("Track downloaded")
	return cachePath, nil
}

// Evict removes a descriptor's cached file if present. Missing files are
// not an error.
func (s *Store) Evict(d Descriptor) error {
	err := os.Remove(s.CachePath(d))
	if nil != err && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Prefetch resolves descriptors concurrently and returns one result per
// descriptor in input order. A failing track never aborts its siblings.
func (s *Store) Prefetch(ctx context.Context, descriptors []Descriptor) []Result {
	results := make([]Result, len(descriptors))

	wg := errgroup.Group{}
	wg.SetLimit(ratelimit.PrefetchConcurrency)
	for i, d := range descriptors {
		wg.Go(func() error {
			path, err := s.Resolve(ctx, d)
			results[i] = Result{Descriptor: d, Path: path, Err: err}
			if nil == err {
				sleepJitter(ctx)
			}
			return nil
		})
	}
	_ = wg.Wait()

	return results
}

// knownLocal reports whether the descriptor already points at a playable
// file on this machine. Paths shorter than a drive root are server-side
// paths leaked into the field and are ignored.
func (s *Store) knownLocal(d Descriptor) (string, bool) {
	if len(d.LocalPath) <= 5 {
		return "", false
	}
	info, err := os.Stat(d.LocalPath)
	if nil != err || !info.Mode().IsRegular() {
		return "", false
	}
	return d.LocalPath, true
}

// isValidCache accepts a cached file when it is large enough to be audio
// and, if the catalog announced a size, exactly that size.
func (s *Store) isValidCache(path string, expected int64) bool {
	info, err := os.Stat(path)
	if nil != err || !info.Mode().IsRegular() {
		return false
	}
	size := info.Size()
	if size <= minCacheSize {
		return false
	}
	return expected <= 0 || size == expected
}

func (s *Store) download(ctx context.Context, d Descriptor) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if nil != err {
		return nil, &tfm.NetworkError{URL: d.URL, Err: err}
	}
	req.Header.Set("Accept", "*/*")

	client := http.Client{Timeout: config.TrackDownloadTimeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			return nil, &tfm.NetworkError{URL: d.URL, Err: err}
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &tfm.HTTPStatusError{StatusCode: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); strings.Contains(strings.ToLower(ct), "text/html") {
		return nil, ErrUnexpectedContentType
	}

	body, err := httputil.ReadResponseBody(ctx, resp)
	if nil != err {
		return nil, &tfm.NetworkError{URL: d.URL, Err: err}
	}
	if len(body) == 0 {
		return nil, ErrEmptyDownload
	}

	got := int64(len(body))
	if announced := resp.ContentLength; announced > 0 && float64(got) < float64(announced)*truncationTolerance {
		return nil, &TruncatedDownloadError{Got: got, Expected: announced}
	}
	if d.Size > 0 && float64(got) < float64(d.Size)*truncationTolerance {
		return nil, &TruncatedDownloadError{Got: got, Expected: d.Size}
	}

	if !looksLikeAudio(body) {
		s.logger.Warn().
			Str("track", d.Name).
			Str("url", d.URL).
			Msg("Downloaded payload has no recognizable audio signature")
	}

	return body, nil
}

// looksLikeAudio sniffs the leading bytes for known audio container magics.
// Unknown signatures are tolerated; plenty of valid files carry custom
// headers before the first frame.
func looksLikeAudio(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	switch {
	case bytes.HasPrefix(b, []byte("fLaC")):
		return true
	case bytes.HasPrefix(b, []byte("ID3")):
		return true
	case bytes.HasPrefix(b, []byte("OggS")):
		return true
	case bytes.HasPrefix(b, []byte("RIFF")):
		return true
	case b[0] == 0xFF && b[1]&0xE0 == 0xE0:
		return true
	default:
		return false
	}
}

// write stores the body and verifies the on-disk outcome. A file that does
// not match what was written is deleted rather than left to poison future
// cache checks.
func (s *Store) write(path string, body []byte) error {
	f, err := os.Create(path)
	if nil != err {
		return &WriteError{Path: path, Err: err}
	}

	written, writeErr := f.Write(body)
	closeErr := f.Close()
	switch {
	case nil != writeErr:
		_ = os.Remove(path)
		return &WriteError{Path: path, Err: writeErr}
	case nil != closeErr:
		_ = os.Remove(path)
		return &WriteError{Path: path, Err: closeErr}
	case written != len(body):
		_ = os.Remove(path)
		return &WriteError{Path: path, Err: fmt.Errorf("short write: %d of %d bytes", written, len(body))}
	}

	info, err := os.Stat(path)
	if nil != err || info.Size() != int64(len(body)) {
		_ = os.Remove(path)
		return &WriteError{Path: path, Err: fmt.Errorf("on-disk size mismatch after write")}
	}

	return nil
}

func sleepJitter(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(ratelimit.TrackDownloadSleepMS()):
	}
}
