package emit

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ulikunitz/xz"

	werrors "github.com/ThatTomPerson/webpack/core/errors"
)

// Compression selects an extra encoding assets are also written in.
type Compression string

const (
	// CompressionGzip writes a .gz sibling next to each asset.
	CompressionGzip Compression = "gzip"
	// CompressionXZ writes a .xz sibling next to each asset.
	CompressionXZ Compression = "xz"
)

// Indirection for testing failure paths.
var (
	osRename           = os.Rename
	gzipNewWriterLevel = gzip.NewWriterLevel
	xzNewWriter        = xz.NewWriter
)

// Writer persists assets into the output directory. Every file lands via
// a temp file in the same directory followed by a rename, so a crashed
// build never leaves a half-written asset for a dev server to serve.
type Writer struct {
	dir         string
	compression []Compression
}

// NewWriter builds a writer rooted at dir.
func NewWriter(dir string, compression ...Compression) *Writer {
	return &Writer{dir: dir, compression: compression}
}

// WriteAsset writes the asset and its compressed variants, creating
// parent directories as needed. It returns the paths written, variants
// sorted after the plain asset.
func (w *Writer) WriteAsset(a *Asset) ([]string, error) {
	path := filepath.Join(w.dir, filepath.FromSlash(a.Filename))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, werrors.NewIO("create output directory", filepath.Dir(path), err)
	}

	if err := writeFileAtomic(path, func(f *os.File) error {
		_, err := f.Write(a.Source)
		return err
	}); err != nil {
		return nil, err
	}
	paths := []string{path}

	variants := append([]Compression(nil), w.compression...)
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })
	for _, c := range variants {
		vp, err := w.writeVariant(path, c, a.Source)
		if err != nil {
			return paths, err
		}
		paths = append(paths, vp)
	}
	return paths, nil
}

func (w *Writer) writeVariant(path string, c Compression, source []byte) (string, error) {
	switch c {
	case CompressionGzip:
		vp := path + ".gz"
		err := writeFileAtomic(vp, func(f *os.File) error {
			zw, err := gzipNewWriterLevel(f, gzip.BestCompression)
			if err != nil {
				return err
			}
			if _, err := zw.Write(source); err != nil {
				zw.Close()
				return err
			}
			return zw.Close()
		})
		return vp, err
	case CompressionXZ:
		vp := path + ".xz"
		err := writeFileAtomic(vp, func(f *os.File) error {
			xw, err := xzNewWriter(f)
			if err != nil {
				return err
			}
			if _, err := xw.Write(source); err != nil {
				xw.Close()
				return err
			}
			return xw.Close()
		})
		return vp, err
	default:
		return "", werrors.NewValidation("compression", "unknown compression "+string(c))
	}
}

// writeFileAtomic writes through a temp file in the destination directory
// and renames it into place. The temp file is removed on any failure.
func writeFileAtomic(path string, fill func(*os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".asset-*")
	if err != nil {
		return werrors.NewIO("create temp asset", dir, err)
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return werrors.NewIO("write asset", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return werrors.NewIO("close asset", path, err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return werrors.NewIO("rename asset", path, err)
	}
	return nil
}

// ReadAsset loads a previously written asset, mostly for tests and the
// dev server's fallback path.
func ReadAsset(dir, filename string) ([]byte, error) {
	path := filepath.Join(dir, filepath.FromSlash(filename))
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, werrors.Wrapf(werrors.ErrNotFound, "asset %s", filename)
		}
		return nil, werrors.NewIO("read asset", path, err)
	}
	return b, nil
}

// decompress reverses a variant encoding, used by tests to verify the
// sibling files round-trip.
func decompress(c Compression, r io.Reader) ([]byte, error) {
	switch c {
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.ReadAll(xr)
	default:
		return nil, werrors.NewValidation("compression", "unknown compression "+string(c))
	}
}
