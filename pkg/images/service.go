// Package images downloads remote cover and page images, normalizes them to
// JPEG and stores them under the asset directory.
package images

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/comicseed/pkg/config"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
	"golang.org/x/sync/singleflight"
)

const (
	jpegQuality  = 85
	maxImageSize = 25 << 20
)

// Materializer turns a source image reference into a stored asset path.
type Materializer interface {
	Materialize(ctx context.Context, source, namespace string) (string, bool)
}

type result struct {
	path string
	ok   bool
}

type Service struct {
	assetDir  string
	maxWidth  int
	maxPixels int
	userAgent string
	client    *http.Client

	flight singleflight.Group
	memo   sync.Map // map[string]result, keyed by source
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		assetDir:  cfg.AssetDir,
		maxWidth:  cfg.AssetMaxWidth,
		maxPixels: cfg.AssetMaxPixels,
		userAgent: cfg.AssetUserAgent,
		client:    &http.Client{Timeout: cfg.AssetTimeout},
	}
}

// Materialize returns the stored path for source. Sources that are not
// http(s) URLs are treated as already local and returned unchanged. Any
// failure is logged and reported as ok == false.
//
// Each source is fetched at most once per instance. Asking for it under
// another namespace places a copy of the stored file there.
func (svc *Service) Materialize(ctx context.Context, source, namespace string) (string, bool) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", false
	}
	if !isRemote(source) {
		return source, true
	}

	res := svc.stored(ctx, source, namespace)
	if !res.ok {
		return "", false
	}

	dest := svc.Path(source, namespace)
	if res.path == dest {
		return dest, true
	}
	if err := place(res.path, dest); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to place image", logger.Data{
			"source":    source,
			"namespace": namespace,
		})
		return "", false
	}
	return dest, true
}

// stored returns the memoized result for source, materializing it into
// namespace on first use.
func (svc *Service) stored(ctx context.Context, source, namespace string) result {
	if r, ok := svc.memo.Load(source); ok {
		return r.(result)
	}

	v, _, _ := svc.flight.Do(source, func() (interface{}, error) {
		if r, ok := svc.memo.Load(source); ok {
			return r, nil
		}
		path, err := svc.materialize(ctx, source, namespace)
		res := result{path: path, ok: err == nil}
		if err != nil {
			logger.FromContext(ctx).Err(err).Warn("failed to materialize image", logger.Data{
				"source":    source,
				"namespace": namespace,
			})
			// Leave cancelled fetches unmemoized.
			if ctx.Err() != nil {
				return res, nil
			}
		}
		svc.memo.Store(source, res)
		return res, nil
	})
	return v.(result)
}

// Path returns where source is stored for namespace.
func (svc *Service) Path(source, namespace string) string {
	sum := sha1.Sum([]byte(source)) //nolint:gosec
	return filepath.Join(svc.assetDir, filepath.FromSlash(namespace), hex.EncodeToString(sum[:])+".jpg")
}

func (svc *Service) materialize(ctx context.Context, source, namespace string) (string, error) {
	dest := svc.Path(source, namespace)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	data, err := svc.fetch(ctx, source)
	if err != nil {
		return "", err
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", errors.Errorf("unexpected content type %s", mtype.String())
	}

	// Decoders allocate from the header dimensions, so check them before
	// decoding anything.
	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to read image header")
	}
	if err := svc.checkDimensions(hdr.Width, hdr.Height); err != nil {
		return "", err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to decode image")
	}
	img = svc.downscale(img)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", errors.WithStack(err)
	}
	if err := writeJPEG(dest, img); err != nil {
		return "", err
	}
	return dest, nil
}

func (svc *Service) checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid image dimensions %dx%d", width, height)
	}
	if svc.maxPixels > 0 && (width > svc.maxPixels/height || width*height > svc.maxPixels) {
		return errors.Errorf("image dimensions %dx%d exceed %d pixels", width, height, svc.maxPixels)
	}
	return nil
}

func (svc *Service) fetch(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if svc.userAgent != "" {
		req.Header.Set("User-Agent", svc.userAgent)
	}

	resp, err := svc.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(data) > maxImageSize {
		return nil, errors.Errorf("image larger than %d bytes", maxImageSize)
	}
	return data, nil
}

func (svc *Service) downscale(img image.Image) image.Image {
	bounds := img.Bounds()
	if svc.maxWidth <= 0 || bounds.Dx() <= svc.maxWidth {
		return img
	}
	height := bounds.Dy() * svc.maxWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, svc.maxWidth, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// writeJPEG writes through a temp file so a concurrent reader never sees a
// partial image.
func writeJPEG(dest string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*.jpg")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to encode jpeg")
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp.Name(), dest))
}

// place puts a copy of the stored file at dest. A hard link is tried first;
// the copy goes through a temp file like writeJPEG.
func place(src, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Link(src, dest); err == nil || os.IsExist(err) {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*.jpg")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp.Name(), dest))
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
