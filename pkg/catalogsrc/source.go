// Package catalogsrc fetches catalog documents from an HTTP(S) URL or a
// local file, with conditional requests so unchanged remote documents are
// not downloaded again.
package catalogsrc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ErrTooLarge is returned when a document exceeds the configured size.
var ErrTooLarge = errors.New("catalogsrc: document too large")

type Result struct {
	Data []byte
	// NotModified is set when the server answered 304 to a conditional
	// request. Data is nil in that case.
	NotModified bool
	FetchedAt   time.Time
}

type Source struct {
	location string
	maxBytes int64
	client   *http.Client
	logger   *slog.Logger

	mu           sync.Mutex
	etag         string
	lastModified string
}

// New returns a Source for location, which is either an http(s) URL or a
// file path (optionally prefixed with file://). Files ending in .gz are
// decompressed. maxBytes <= 0 disables the size limit.
func New(location string, maxBytes int64, logger *slog.Logger) *Source {
	return &Source{
		location: location,
		maxBytes: maxBytes,
		client: &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "catalog_source"),
	}
}

func (s *Source) Location() string {
	return s.location
}

func (s *Source) isRemote() bool {
	return strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://")
}

func (s *Source) Fetch(ctx context.Context) (*Result, error) {
	if s.location == "" {
		return nil, errors.New("catalogsrc: empty location")
	}
	if s.isRemote() {
		return s.fetchHTTP(ctx)
	}
	return s.readFile()
}

func (s *Source) fetchHTTP(ctx context.Context) (*Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Rutas-Backend/1.0")
	req.Header.Set("Accept", "application/json")

	s.mu.Lock()
	if s.etag != "" {
		req.Header.Set("If-None-Match", s.etag)
	}
	if s.lastModified != "" {
		req.Header.Set("If-Modified-Since", s.lastModified)
	}
	s.mu.Unlock()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	s.logger.Debug("received HTTP response",
		"status_code", resp.StatusCode,
		"content_length", resp.ContentLength,
		"content_type", resp.Header.Get("Content-Type"),
	)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		s.logger.Debug("catalog not modified", "duration_ms", time.Since(start).Milliseconds())
		return &Result{NotModified: true, FetchedAt: time.Now()}, nil
	default:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := s.readLimited(resp.Body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	s.mu.Unlock()

	s.logger.Info("catalog downloaded",
		"url", s.location,
		"size_bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Data: data, FetchedAt: time.Now()}, nil
}

func (s *Source) readFile() (*Result, error) {
	path := strings.TrimPrefix(s.location, "file://")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := s.readLimited(r)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, FetchedAt: time.Now()}, nil
}

func (s *Source) readLimited(r io.Reader) ([]byte, error) {
	if s.maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if n > s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, s.maxBytes)
	}
	return buf.Bytes(), nil
}
