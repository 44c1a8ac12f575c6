package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/media"
	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/repository"
)

// FileDownloader fetches a Telegram file body. Implemented by the telegram
// source.
type FileDownloader interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// MediaFetcher materializes a content item's Telegram files on local disk.
type MediaFetcher interface {
	EnsureLocalFiles(ctx context.Context, item *models.ContentItem) ([]string, error)
}

type mediaFetcher struct {
	downloader FileDownloader
	items      repository.ContentItemRepository
	storageDir string
}

func NewMediaFetcher(downloader FileDownloader, items repository.ContentItemRepository, storageDir string) MediaFetcher {
	return &mediaFetcher{
		downloader: downloader,
		items:      items,
		storageDir: storageDir,
	}
}

// EnsureLocalFiles downloads the item's files unless an earlier attempt
// already left them on disk, and persists the paths so retries reuse them.
func (f *mediaFetcher) EnsureLocalFiles(ctx context.Context, item *models.ContentItem) ([]string, error) {
	if len(item.LocalFiles) == len(item.TelegramFileIDs) && allExist(item.LocalFiles) {
		return item.LocalFiles, nil
	}

	localFiles := make([]string, 0, len(item.TelegramFileIDs))
	for i, fileID := range item.TelegramFileIDs {
		path, err := f.downloadOne(ctx, item, i, fileID)
		if err != nil {
			return nil, fmt.Errorf("download file %d of item %d: %w", i, item.ID, err)
		}
		localFiles = append(localFiles, path)
	}

	if err := f.items.SetLocalFiles(ctx, item.ID, localFiles); err != nil {
		return nil, err
	}
	item.LocalFiles = localFiles
	return localFiles, nil
}

func (f *mediaFetcher) downloadOne(ctx context.Context, item *models.ContentItem, index int, fileID string) (string, error) {
	body, err := f.downloader.Download(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	payload, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	fallback := ".jpg"
	if item.ContentType == models.ContentTypeVideo {
		fallback = ".mp4"
	}
	ext := media.DetectExtension(payload, fallback)

	name := fmt.Sprintf("item_%d_%d%s", item.ID, index, ext)
	path := filepath.Join(f.storageDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}

	log.Debug().Str("path", path).Int("bytes", len(payload)).Msg("telegram file downloaded")
	return path, nil
}

func allExist(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
