package archive

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/cwygoda/mixpack/internal/domain"
)

// ConfigExtension marks transient acquisition config files. They are never
// archived, whatever the outcome bookkeeping says.
const ConfigExtension = ".json"

const maxNameRunes = 100

var unsafeNameChars = strings.NewReplacer(
	" ", "_",
	"/", "_",
	`\`, "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// Builder writes acquired tracks into a zip archive.
type Builder struct {
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.Archiver = (*Builder)(nil)

// NewBuilder creates a Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{now: time.Now, logger: logger}
}

// SanitizeName makes a playlist name safe to use as a file name.
func SanitizeName(name string) string {
	clean := strings.TrimSpace(unsafeNameChars.Replace(strings.TrimSpace(name)))
	if r := []rune(clean); len(r) > maxNameRunes {
		clean = string(r[:maxNameRunes])
	}
	if clean == "" || clean == "." || clean == ".." {
		return "playlist"
	}
	return clean
}

// FileName returns the archive file name for playlistName at t.
func FileName(playlistName string, t time.Time) string {
	return fmt.Sprintf("%s-%d.zip", SanitizeName(playlistName), t.Unix())
}

// Build walks tracksDir and writes every regular file except config artifacts
// into a new archive in outDir. An empty tracksDir yields a valid empty archive.
func (b *Builder) Build(ctx context.Context, tracksDir, outDir, playlistName string) (*domain.Archive, error) {
	path := filepath.Join(outDir, FileName(playlistName, b.now()))
	b.logger.Info("creating archive", "path", path)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}

	files, err := b.write(ctx, f, tracksDir)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close archive: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	digest, err := Digest(path)
	if err != nil {
		return nil, err
	}

	return &domain.Archive{
		Path:   path,
		Files:  files,
		Size:   info.Size(),
		Digest: digest,
	}, nil
}

func (b *Builder) write(ctx context.Context, w io.Writer, tracksDir string) ([]string, error) {
	zw := zip.NewWriter(w)
	files := []string{}

	err := filepath.WalkDir(tracksDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ConfigExtension) {
			b.logger.Debug("skipping config artifact", "file", d.Name())
			return nil
		}

		rel, err := filepath.Rel(tracksDir, path)
		if err != nil {
			return fmt.Errorf("resolve relative path: %w", err)
		}
		name := filepath.ToSlash(rel)
		if err := addFile(zw, path, name); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		b.logger.Debug("added to archive", "file", name)
		files = append(files, name)
		return nil
	})
	if err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return files, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Digest returns the BLAKE3 hash of the file at path as "blake3:<hex>".
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive for digest: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash archive: %w", err)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}
