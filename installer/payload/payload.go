// Package payload builds and extracts self-extracting setups: the stub executable
// followed by a tar.gz of the application tree, an 8-byte little-endian archive
// length and the "SFXMAGIC" marker.
package payload

import (
	"archive/tar"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	magicTrailer = "SFXMAGIC"
	trailerSize  = 8 + 8

	// MetaName is the product metadata entry stored next to the application tree.
	MetaName = "meta.yaml"
	appDir   = "app/"
)

// Build writes stub + archive(payloadDir, meta) + trailer to outputSetup.
func Build(stubExe, payloadDir, outputSetup string, meta []byte) error {
	stubData, err := os.ReadFile(stubExe)
	if err != nil {
		return fmt.Errorf("read stub: %w", err)
	}
	if info, err := os.Stat(payloadDir); err != nil || !info.IsDir() {
		return fmt.Errorf("payload dir %s: not a directory", payloadDir)
	}

	f, err := os.OpenFile(outputSetup, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create setup: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(stubData); err != nil {
		return err
	}
	counter := &countingWriter{w: f}
	if err := writeArchive(counter, payloadDir, meta); err != nil {
		return fmt.Errorf("build archive: %w", err)
	}

	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, uint64(counter.n))
	if _, err := f.Write(lenBuf); err != nil {
		return err
	}
	if _, err := f.Write([]byte(magicTrailer)); err != nil {
		return err
	}
	return f.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeArchive(w io.Writer, root string, meta []byte) error {
	gzw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(gzw)

	now := time.Now()
	if err := tw.WriteHeader(&tar.Header{Name: MetaName, Mode: 0o644, Size: int64(len(meta)), ModTime: now}); err != nil {
		return err
	}
	if _, err := tw.Write(meta); err != nil {
		return err
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		// 符号链接按目标文件打包
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		mode := int64(info.Mode().Perm())
		// 对于 exe 给予执行权限（在 *nix 上）
		if strings.EqualFold(filepath.Ext(p), ".exe") {
			mode = 0o755
		}
		h := &tar.Header{
			Name:    appDir + filepath.ToSlash(rel),
			Mode:    mode,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(h); err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		tw.Close()
		gzw.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		gzw.Close()
		return err
	}
	return gzw.Close()
}

// ErrNoPayload the executable carries no appended archive (e.g. a bare stub).
var ErrNoPayload = errors.New("no embedded payload")

// Extract unpacks the archive appended to exePath into destDir. It returns the
// directory holding the application tree and the raw meta.yaml bytes.
func Extract(exePath, destDir string) (string, []byte, error) {
	f, err := os.Open(exePath)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	archive, err := locateArchive(f)
	if err != nil {
		return "", nil, err
	}
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return "", nil, err
	}
	defer gzr.Close()

	root := filepath.Join(destDir, filepath.FromSlash(strings.TrimSuffix(appDir, "/")))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", nil, err
	}

	var meta []byte
	tr := tar.NewReader(gzr)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		name := path.Clean(h.Name)
		if name == MetaName {
			if meta, err = io.ReadAll(tr); err != nil {
				return "", nil, err
			}
			continue
		}
		rel, ok := strings.CutPrefix(name, appDir)
		if !ok || !filepath.IsLocal(filepath.FromSlash(rel)) {
			return "", nil, fmt.Errorf("unsafe archive entry %q", h.Name)
		}
		if err := writeEntry(filepath.Join(root, filepath.FromSlash(rel)), os.FileMode(h.Mode).Perm(), tr); err != nil {
			return "", nil, err
		}
	}
	return root, meta, nil
}

func writeEntry(dest string, mode os.FileMode, r io.Reader) error {
	if mode == 0 {
		mode = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// locateArchive 读取文件末尾的 trailer，返回归档所在区间。
func locateArchive(f *os.File) (io.Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < trailerSize {
		return nil, ErrNoPayload
	}
	trailer := make([]byte, trailerSize)
	if _, err := f.ReadAt(trailer, info.Size()-trailerSize); err != nil {
		return nil, err
	}
	if string(trailer[8:]) != magicTrailer {
		return nil, ErrNoPayload
	}
	archiveLen := binary.LittleEndian.Uint64(trailer[:8])
	if archiveLen == 0 || archiveLen > uint64(info.Size()-trailerSize) {
		return nil, fmt.Errorf("invalid archive len")
	}
	start := info.Size() - trailerSize - int64(archiveLen)
	return io.NewSectionReader(f, start, int64(archiveLen)), nil
}

// ReadMeta returns only the meta.yaml entry of the archive appended to exePath.
// meta.yaml is written first, so this never decompresses the application tree.
func ReadMeta(exePath string) ([]byte, error) {
	f, err := os.Open(exePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	archive, err := locateArchive(f)
	if err != nil {
		return nil, err
	}
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s not found in payload", MetaName)
		}
		if err != nil {
			return nil, err
		}
		if path.Clean(h.Name) == MetaName {
			return io.ReadAll(tr)
		}
	}
}
