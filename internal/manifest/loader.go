package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

// maxManifestSize bounds how much of a playlist response is read.
const maxManifestSize = 16 << 20

// Loader fetches media playlists over HTTP and turns them into segment descriptors.
type Loader struct {
	client    *http.Client
	userAgent string
	log       *logger.Logger
}

func NewLoader(client *http.Client, userAgent string, log *logger.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client, userAgent: userAgent, log: log.Component("manifest")}
}

// Load fetches the playlist at uri and returns its segments in playback order.
func (l *Loader) Load(ctx context.Context, uri string) (*domain.Playlist, error) {
	base, err := ValidateURL(uri)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrManifest, err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		fe := &domain.FetchError{Kind: domain.KindNetwork, Attempts: 1, Err: err}
		return nil, fmt.Errorf("%w: fetch %s: %w", domain.ErrManifest, uri, fe)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &domain.FetchError{Kind: domain.KindHTTPStatus, Code: resp.StatusCode, Attempts: 1}
		return nil, fmt.Errorf("%w: fetch %s: %w", domain.ErrManifest, uri, fe)
	}

	pl, err := Parse(io.LimitReader(resp.Body, maxManifestSize), base)
	if err != nil {
		return nil, err
	}

	if pl.Live {
		l.log.Warn("Playlist %s has no EXT-X-ENDLIST, downloading the current %d segment(s) only", uri, pl.MediaCount())
	}
	l.log.Debug("Parsed %s: %d descriptor(s)", uri, len(pl.Segments))

	return pl, nil
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(uri string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", domain.ErrInvalidURL, uri, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: must use http or https, got %q", domain.ErrInvalidURL, uri)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", domain.ErrInvalidURL, uri)
	}
	return u, nil
}

// Parse decodes playlist text. Relative segment references are resolved
// against base.
func Parse(r io.Reader, base *url.URL) (*domain.Playlist, error) {
	p, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, fmt.Errorf("%w: decode playlist: %w", domain.ErrManifest, err)
	}

	switch listType {
	case m3u8.MASTER:
		return nil, fmt.Errorf("%w: master playlists are not supported, pass a media playlist URL", domain.ErrManifest)
	case m3u8.MEDIA:
	default:
		return nil, fmt.Errorf("%w: unknown playlist type", domain.ErrManifest)
	}

	media := p.(*m3u8.MediaPlaylist)

	if err := checkKey(media.Key); err != nil {
		return nil, err
	}

	out := &domain.Playlist{
		URL:  base.String(),
		Live: !media.Closed,
	}

	if m := initSection(media); m != nil {
		seg, err := descriptor(base, m.URI, m.Offset, m.Limit)
		if err != nil {
			return nil, err
		}
		seg.Init = true
		out.Segments = append(out.Segments, seg)
	}

	// Sub-ranges without an explicit offset start where the previous one
	// on the same resource ended
	var lastURI string
	var lastRaw, lastEnd int64

	for _, ms := range media.Segments {
		if ms == nil {
			continue
		}
		if err := checkKey(ms.Key); err != nil {
			return nil, err
		}

		offset := ms.Offset
		if ms.Limit > 0 && ms.URI == lastURI && (offset == 0 || offset == lastRaw) {
			offset = lastEnd
		}

		seg, err := descriptor(base, ms.URI, offset, ms.Limit)
		if err != nil {
			return nil, err
		}
		seg.Index = len(out.Segments)
		seg.Duration = ms.Duration
		out.Segments = append(out.Segments, seg)

		lastURI = ms.URI
		lastRaw = ms.Offset
		lastEnd = offset + ms.Limit
	}

	if out.MediaCount() == 0 {
		// An init section alone is not a stream
		out.Segments = nil
	}

	return out, nil
}

// Resolve turns a segment reference into an absolute URL. Absolute
// references are returned unchanged.
func Resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("%w: invalid segment URI %q: %w", domain.ErrManifest, ref, err)
	}
	if u.IsAbs() {
		return strings.TrimSpace(ref), nil
	}
	return base.ResolveReference(u).String(), nil
}

func descriptor(base *url.URL, ref string, offset, limit int64) (domain.Segment, error) {
	abs, err := Resolve(base, ref)
	if err != nil {
		return domain.Segment{}, err
	}

	seg := domain.Segment{URI: abs}
	if limit > 0 {
		seg.Range = &domain.ByteRange{Offset: offset, Length: limit}
	}
	return seg, nil
}

func initSection(media *m3u8.MediaPlaylist) *m3u8.Map {
	if media.Map != nil && media.Map.URI != "" {
		return media.Map
	}
	for _, ms := range media.Segments {
		if ms != nil && ms.Map != nil && ms.Map.URI != "" {
			return ms.Map
		}
	}
	return nil
}

func checkKey(k *m3u8.Key) error {
	if k == nil {
		return nil
	}
	if k.Method == "" || strings.EqualFold(k.Method, "NONE") {
		return nil
	}
	return fmt.Errorf("%w: encrypted playlists (METHOD=%s) are not supported", domain.ErrManifest, k.Method)
}
