package images

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shishobooks/comicseed/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// withHeaderSize rewrites the IHDR dimensions of an encoded PNG and fixes up
// the chunk checksum, leaving the pixel data untouched.
func withHeaderSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.NewForTest()
	cfg.AssetDir = t.TempDir()
	cfg.AssetMaxWidth = 100
	return NewService(cfg)
}

func TestMaterialize_DownloadsAndResizes(t *testing.T) {
	data := encodePNG(t, 200, 50)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "comicseed/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	svc := newTestService(t)
	ctx := context.Background()

	path, ok := svc.Materialize(ctx, srv.URL+"/cover.png", "comics")
	require.True(t, ok)
	assert.Equal(t, svc.Path(srv.URL+"/cover.png", "comics"), path)
	assert.Equal(t, ".jpg", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 25, cfg.Height)

	// Memoized within the instance.
	again, ok := svc.Materialize(ctx, srv.URL+"/cover.png", "comics")
	require.True(t, ok)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), hits.Load())
}

func TestMaterialize_ReusesFileAcrossInstances(t *testing.T) {
	data := encodePNG(t, 20, 20)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	cfg := config.NewForTest()
	cfg.AssetDir = t.TempDir()
	ctx := context.Background()

	first, ok := NewService(cfg).Materialize(ctx, srv.URL+"/a.png", "comics")
	require.True(t, ok)
	second, ok := NewService(cfg).Materialize(ctx, srv.URL+"/a.png", "comics")
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestMaterialize_ConcurrentRequestsCollapse(t *testing.T) {
	data := encodePNG(t, 20, 20)
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	svc := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], _ = svc.Materialize(ctx, srv.URL+"/p.png", "chapters/x/1")
		}(i)
	}
	close(release)
	wg.Wait()

	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
	assert.NotEmpty(t, paths[0])
	assert.Equal(t, int32(1), hits.Load())
}

func TestMaterialize_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.png":
			w.WriteHeader(http.StatusNotFound)
		case "/page.html":
			_, _ = w.Write([]byte("<html><body>not an image</body></html>"))
		case "/corrupt.png":
			_, _ = w.Write([]byte("\x89PNG\r\n\x1a\ngarbage"))
		}
	}))
	defer srv.Close()

	svc := newTestService(t)
	ctx := context.Background()

	for _, p := range []string{"/missing.png", "/page.html", "/corrupt.png"} {
		path, ok := svc.Materialize(ctx, srv.URL+p, "comics")
		assert.False(t, ok, p)
		assert.Empty(t, path, p)
	}
}

func TestMaterialize_RejectsOversizedDimensions(t *testing.T) {
	huge := withHeaderSize(t, encodePNG(t, 4, 4), 100000, 100000)
	wide := withHeaderSize(t, encodePNG(t, 4, 4), 50000, 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/huge.png" {
			_, _ = w.Write(huge)
			return
		}
		_, _ = w.Write(wide)
	}))
	defer srv.Close()

	svc := newTestService(t)
	ctx := context.Background()

	for _, p := range []string{"/huge.png", "/wide.png"} {
		path, ok := svc.Materialize(ctx, srv.URL+p, "comics")
		assert.False(t, ok, p)
		assert.Empty(t, path, p)
		assert.NoFileExists(t, svc.Path(srv.URL+p, "comics"))
	}
}

func TestCheckDimensions(t *testing.T) {
	svc := &Service{maxPixels: 100}

	assert.NoError(t, svc.checkDimensions(10, 10))
	assert.NoError(t, svc.checkDimensions(100, 1))
	assert.Error(t, svc.checkDimensions(11, 10))
	assert.Error(t, svc.checkDimensions(0, 10))
	assert.Error(t, svc.checkDimensions(1<<30, 1<<30))
}

func TestMaterialize_SharedSourceFetchedOnce(t *testing.T) {
	data := encodePNG(t, 20, 20)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	svc := newTestService(t)
	ctx := context.Background()
	source := srv.URL + "/credits.png"

	first, ok := svc.Materialize(ctx, source, "chapters/berserk/1")
	require.True(t, ok)
	second, ok := svc.Materialize(ctx, source, "chapters/berserk/2")
	require.True(t, ok)

	assert.Equal(t, svc.Path(source, "chapters/berserk/1"), first)
	assert.Equal(t, svc.Path(source, "chapters/berserk/2"), second)
	assert.FileExists(t, first)
	assert.FileExists(t, second)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), hits.Load())
}

func TestMaterialize_LocalAndEmptySources(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	path, ok := svc.Materialize(ctx, "/images/covers/one.jpg", "comics")
	assert.True(t, ok)
	assert.Equal(t, "/images/covers/one.jpg", path)

	_, ok = svc.Materialize(ctx, "   ", "comics")
	assert.False(t, ok)
}
