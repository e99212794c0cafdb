package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"chessmaster/internal/logging"
	"chessmaster/internal/types"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// downloadImages fetches images in parallel and returns those that
// succeeded, in source order. Individual failures are logged and skipped.
func (f *Fetcher) downloadImages(ctx context.Context, topic string, urls []string) []types.LocalImage {
	dir := filepath.Join(f.imagesDir, topicDir(topic))
	paths := make([]string, len(urls))

	workers := f.cfg.ImageWorkers
	if workers <= 0 {
		workers = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range urls {
		g.Go(func() error {
			p, err := f.downloadImage(gctx, dir, u)
			if err != nil {
				logging.FetcherDebug("image %s: %v", u, err)
				return nil
			}
			paths[i] = p
			return nil
		})
	}
	_ = g.Wait()

	var out []types.LocalImage
	for i, p := range paths {
		if p != "" {
			out = append(out, types.LocalImage{Path: p, SourceURL: urls[i]})
		}
	}
	return out
}

// downloadImage stores one image under dir, named by a hash of its URL so
// repeated downloads land on the same file.
func (f *Fetcher) downloadImage(ctx context.Context, dir, imageURL string) (string, error) {
	sum := sha256.Sum256([]byte(imageURL))
	name := hex.EncodeToString(sum[:])[:10]

	for _, ext := range imageExtensions {
		if p := filepath.Join(dir, name+ext); fileExists(p) {
			return p, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.imageTimeout)
	defer cancel()

	data, mediaType, err := f.get(ctx, "image", imageURL, f.cfg.MaxImageBytes, "image/*")
	if err != nil {
		return "", err
	}
	ext, ok := imageExtensions[mediaType]
	if !ok {
		return "", types.NewFetchError("image", imageURL, types.ReasonUnsupported, fmt.Errorf("content type %q", mediaType))
	}
	if int64(len(data)) >= f.cfg.MaxImageBytes && f.cfg.MaxImageBytes > 0 {
		return "", types.NewFetchError("image", imageURL, types.ReasonUnsupported, fmt.Errorf("image exceeds %d bytes", f.cfg.MaxImageBytes))
	}

	path := filepath.Join(dir, name+ext)
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir() && !strings.HasSuffix(path, ".tmp")
}
