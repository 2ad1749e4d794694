package pac

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/yolkispalkis/pacselect/pkg/common"
)

const (
	DefaultFetchTimeout    = 10 * time.Second
	DefaultRefreshInterval = 5 * time.Minute

	pacMaxSizeBytes = 1 * 1024 * 1024
	userAgent       = "pacselect/PAC-Fetcher"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// URLSourceOptions tunes a URLSource. Zero values select defaults.
type URLSourceOptions struct {
	FetchTimeout time.Duration
	// RefreshInterval is how long a fetched http(s) script is trusted before
	// HasChanged asks for a conditional refetch. file:// sources are checked
	// by mtime on every call instead.
	RefreshInterval time.Duration
	// Charset overrides Content-Type/BOM detection (e.g. "windows-1251").
	Charset string
}

// URLSource loads a PAC script from an http(s) or file location. HTTP
// fetches always go over a direct connection: the script may itself be what
// decides which proxy to use, so routing its download through a proxy
// selector would recurse.
type URLSource struct {
	location *url.URL
	path     string // set for file sources
	opts     URLSourceOptions
	client   *http.Client
	now      func() time.Time
}

// NewURLSource validates location and prepares a direct HTTP client. An
// unusable location fails here rather than on first use.
func NewURLSource(location string, opts URLSourceOptions) (*URLSource, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("PAC location is empty")
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}

	// Some platforms report "file://host/path" or "file://C:/x"; treat as local.
	if strings.HasPrefix(location, "file://") && !strings.HasPrefix(location, "file:///") {
		location = "file:///" + strings.TrimPrefix(location, "file://")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare path, or a Windows drive letter parsed as a scheme.
		u = &url.URL{Scheme: "file", Path: filepath.ToSlash(location)}
	}

	s := &URLSource{location: u, opts: opts, now: time.Now}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("PAC URL %q has no host", location)
		}
		s.client = &http.Client{
			Timeout: opts.FetchTimeout,
			Transport: &http.Transport{
				Proxy: nil, // never proxied
				DialContext: (&net.Dialer{
					Timeout:   opts.FetchTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          5,
				IdleConnTimeout:       60 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		// "/C:/dir/x.pac" -> "C:/dir/x.pac"
		if strings.HasPrefix(path, "/") && len(path) > 2 && path[2] == ':' {
			path = path[1:]
		}
		if path == "" {
			return nil, fmt.Errorf("PAC file URL %q has no path", location)
		}
		s.path = filepath.Clean(filepath.FromSlash(path))
	default:
		return nil, fmt.Errorf("unsupported PAC URL scheme %q", u.Scheme)
	}
	return s, nil
}

func (s *URLSource) String() string {
	if s.path != "" {
		return "file://" + filepath.ToSlash(s.path)
	}
	return s.location.Redacted()
}

// HasChanged reports whether the script should be refetched.
func (s *URLSource) HasChanged(prev Signature) bool {
	if s.path == "" {
		return prev.At.IsZero() || s.now().Sub(prev.At) >= s.opts.RefreshInterval
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return true
	}
	return fileTag(info) != prev.Tag
}

// Fetch loads the script text.
func (s *URLSource) Fetch(ctx context.Context, prev Signature) (string, Signature, error) {
	var (
		content     []byte
		contentType string
		sig         Signature
		err         error
	)
	if s.path == "" {
		content, contentType, sig, err = s.fetchHTTP(ctx, prev)
	} else {
		content, sig, err = s.fetchFile(prev)
	}
	if err != nil {
		return "", sig, err
	}

	decoded, err := decodeBytesWithCharset(content, contentType, s.opts.Charset)
	if err != nil {
		slog.Warn("Failed to decode PAC content, using raw bytes", "source", s.String(), "error", err)
		decoded = content
	}
	if !utf8.Valid(decoded) {
		slog.Warn("PAC content is not valid UTF-8 after decoding", "source", s.String())
	}
	return string(decoded), sig, nil
}

// Close releases idle connections held by the direct HTTP client.
func (s *URLSource) Close() error {
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
	return nil
}

func (s *URLSource) fetchHTTP(ctx context.Context, prev Signature) ([]byte, string, Signature, error) {
	location := s.location.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, "", prev, fmt.Errorf("%w: failed to create PAC request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if prev.Tag != "" {
		req.Header.Set("If-Modified-Since", prev.Tag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if common.IsTimeoutError(err) {
			return nil, "", prev, fmt.Errorf("%w: %w: %s: %v", ErrFetch, ErrTimeout, s, err)
		}
		return nil, "", prev, fmt.Errorf("%w: %s: %v", ErrFetch, s, err)
	}
	defer resp.Body.Close()

	now := s.now()
	if resp.StatusCode == http.StatusNotModified {
		slog.Debug("PAC file not modified (304)", "source", s.String())
		return nil, "", Signature{Tag: prev.Tag, At: now}, ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", prev, fmt.Errorf("%w: %s returned status %s", ErrFetch, s, resp.Status)
	}

	limited := &io.LimitedReader{R: resp.Body, N: pacMaxSizeBytes + 1}
	content, err := io.ReadAll(limited)
	if err != nil {
		if common.IsTimeoutError(err) {
			return nil, "", prev, fmt.Errorf("%w: %w: reading %s: %v", ErrFetch, ErrTimeout, s, err)
		}
		return nil, "", prev, fmt.Errorf("%w: reading %s: %v", ErrFetch, s, err)
	}
	if len(content) > pacMaxSizeBytes {
		return nil, "", prev, fmt.Errorf("%w: %s exceeds size limit (%d bytes)", ErrFetch, s, pacMaxSizeBytes)
	}

	sig := Signature{Tag: resp.Header.Get("Last-Modified"), At: now}
	return content, resp.Header.Get("Content-Type"), sig, nil
}

func (s *URLSource) fetchFile(prev Signature) ([]byte, Signature, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, prev, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if info.IsDir() {
		return nil, prev, fmt.Errorf("%w: %s is a directory", ErrFetch, s.path)
	}
	if info.Size() > pacMaxSizeBytes {
		return nil, prev, fmt.Errorf("%w: %s exceeds size limit (%d bytes)", ErrFetch, s.path, pacMaxSizeBytes)
	}

	tag := fileTag(info)
	if tag == prev.Tag {
		return nil, Signature{Tag: tag, At: s.now()}, ErrNotModified
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, prev, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return content, Signature{Tag: tag, At: s.now()}, nil
}

func fileTag(info os.FileInfo) string {
	return info.ModTime().UTC().Format(time.RFC3339Nano) + "/" + strconv.FormatInt(info.Size(), 10)
}

// decodeBytesWithCharset converts raw to UTF-8 using, in order, the
// override, the Content-Type charset parameter, or a BOM.
func decodeBytesWithCharset(raw []byte, contentType, override string) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	encodingName := "utf-8"
	switch {
	case override != "":
		encodingName = override
	case contentType != "":
		if _, params, err := mime.ParseMediaType(contentType); err == nil && params["charset"] != "" {
			encodingName = params["charset"]
		} else if _, name, certain := charset.DetermineEncoding(raw, ""); certain {
			encodingName = name
		}
	default:
		if _, name, certain := charset.DetermineEncoding(raw, ""); certain {
			encodingName = name
		}
	}

	enc, name := charset.Lookup(encodingName)
	if enc == nil {
		slog.Warn("Unsupported PAC charset, assuming UTF-8", "charset", encodingName)
		return bytes.TrimPrefix(raw, utf8BOM), nil
	}
	if name == "utf-8" {
		return bytes.TrimPrefix(raw, utf8BOM), nil
	}

	// BOMOverride drops a leading byte order mark instead of decoding it.
	decoded, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("failed to transform bytes from %s to UTF-8: %w", name, err)
	}
	return decoded, nil
}
