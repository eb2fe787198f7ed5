package manifest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/infra/logger"
)

const vodPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:4.000,
seg0.ts
#EXTINF:4.000,
sub/seg1.ts
#EXTINF:4.000,
https://cdn.example.com/abs/seg2.ts
#EXT-X-ENDLIST
`

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestParseResolvesSegmentURIs(t *testing.T) {
	pl, err := Parse(strings.NewReader(vodPlaylist), mustURL(t, "https://example.com/video/index.m3u8"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []string{
		"https://example.com/video/seg0.ts",
		"https://example.com/video/sub/seg1.ts",
		"https://cdn.example.com/abs/seg2.ts",
	}
	if len(pl.Segments) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(pl.Segments))
	}
	for i, seg := range pl.Segments {
		if seg.Index != i {
			t.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.URI != want[i] {
			t.Errorf("segment %d uri = %q, want %q", i, seg.URI, want[i])
		}
		if seg.Range != nil {
			t.Errorf("segment %d unexpectedly has a byte range", i)
		}
	}
	if pl.Live {
		t.Errorf("playlist with ENDLIST reported as live")
	}
}

func TestParseLiveSnapshot(t *testing.T) {
	live := strings.Replace(vodPlaylist, "#EXT-X-ENDLIST\n", "", 1)
	pl, err := Parse(strings.NewReader(live), mustURL(t, "https://example.com/index.m3u8"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !pl.Live {
		t.Fatalf("expected playlist without ENDLIST to be live")
	}
	if pl.MediaCount() != 3 {
		t.Fatalf("expected 3 segments in snapshot, got %d", pl.MediaCount())
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "master playlist",
			body: "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720\nlow/index.m3u8\n",
		},
		{
			name: "encrypted",
			body: "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXT-X-KEY:METHOD=AES-128,URI=\"key.bin\"\n#EXTINF:4.0,\nseg0.ts\n#EXT-X-ENDLIST\n",
		},
		{
			name: "not a playlist",
			body: "<html>nope</html>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body), mustURL(t, "https://example.com/index.m3u8"))
			if !errors.Is(err, domain.ErrManifest) {
				t.Fatalf("expected ErrManifest, got %v", err)
			}
		})
	}
}

func TestParseByteRanges(t *testing.T) {
	body := `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:4
#EXTINF:4.0,
#EXT-X-BYTERANGE:1000@0
main.ts
#EXTINF:4.0,
#EXT-X-BYTERANGE:500
main.ts
#EXTINF:4.0,
#EXT-X-BYTERANGE:200@4000
main.ts
#EXT-X-ENDLIST
`
	pl, err := Parse(strings.NewReader(body), mustURL(t, "https://example.com/v/index.m3u8"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []domain.ByteRange{{Offset: 0, Length: 1000}, {Offset: 1000, Length: 500}, {Offset: 4000, Length: 200}}
	if len(pl.Segments) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(pl.Segments))
	}
	for i, seg := range pl.Segments {
		if seg.Range == nil {
			t.Fatalf("segment %d has no range", i)
		}
		if *seg.Range != want[i] {
			t.Errorf("segment %d range = %+v, want %+v", i, *seg.Range, want[i])
		}
	}
}

func TestParseInitSectionComesFirst(t *testing.T) {
	body := `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:4
#EXT-X-MAP:URI="init.mp4"
#EXTINF:4.0,
seg0.m4s
#EXTINF:4.0,
seg1.m4s
#EXT-X-ENDLIST
`
	pl, err := Parse(strings.NewReader(body), mustURL(t, "https://example.com/v/index.m3u8"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pl.Segments) != 3 {
		t.Fatalf("expected init + 2 segments, got %d", len(pl.Segments))
	}
	if !pl.Segments[0].Init || pl.Segments[0].URI != "https://example.com/v/init.mp4" {
		t.Fatalf("first descriptor should be the init section, got %+v", pl.Segments[0])
	}
	if pl.MediaCount() != 2 {
		t.Fatalf("MediaCount = %d, want 2", pl.MediaCount())
	}
	for i, seg := range pl.Segments {
		if seg.Index != i {
			t.Errorf("descriptor %d has index %d", i, seg.Index)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXT-X-ENDLIST\n"
	pl, err := Parse(strings.NewReader(body), mustURL(t, "https://example.com/index.m3u8"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(pl.Segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(pl.Segments))
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"https://example.com/a.m3u8", false},
		{"http://example.com:8080/a.m3u8?token=1", false},
		{"ftp://example.com/a.m3u8", true},
		{"file:///tmp/a.m3u8", true},
		{"example.com/a.m3u8", true},
		{"https:///a.m3u8", true},
	}
	for _, tt := range tests {
		_, err := ValidateURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && (!errors.Is(err, domain.ErrInvalidURL) || !errors.Is(err, domain.ErrValidation)) {
			t.Errorf("ValidateURL(%q) error should wrap ErrInvalidURL and ErrValidation, got %v", tt.in, err)
		}
	}
}

func TestLoaderLoad(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/video/index.m3u8":
			gotUA = r.Header.Get("User-Agent")
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			_, _ = w.Write([]byte(vodPlaylist))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), "hlsget-test", logger.Discard())

	pl, err := l.Load(context.Background(), srv.URL+"/video/index.m3u8")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotUA != "hlsget-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if got := pl.Segments[0].URI; got != srv.URL+"/video/seg0.ts" {
		t.Errorf("first segment = %q", got)
	}

	if _, err := l.Load(context.Background(), srv.URL+"/missing.m3u8"); !errors.Is(err, domain.ErrManifest) {
		t.Fatalf("expected ErrManifest for 404, got %v", err)
	}
}

func TestLoaderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	l := NewLoader(nil, "", logger.Discard())
	if _, err := l.Load(context.Background(), addr+"/index.m3u8"); !errors.Is(err, domain.ErrManifest) {
		t.Fatalf("expected ErrManifest for unreachable host, got %v", err)
	}
}

func TestLoaderStatusIsAlsoFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewLoader(srv.Client(), "", logger.Discard()).Load(context.Background(), srv.URL+"/index.m3u8")

	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError in chain, got %v", err)
	}
	if fe.Kind != domain.KindHTTPStatus || fe.Code != http.StatusForbidden {
		t.Fatalf("unexpected fetch error %+v", fe)
	}
}
