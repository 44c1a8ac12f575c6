package tiktok

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/media"
	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/transfer"
)

// API is the subset of the client the publisher drives. Tests substitute a
// fake to script attempt outcomes.
type API interface {
	InitVideo(ctx context.Context, accessToken, postMode, title string, videoSize int64) (*transfer.InitData, error)
	FinalizeVideo(ctx context.Context, accessToken, postMode, publishID, title string) (*transfer.PublishData, error)
	InitPhotos(ctx context.Context, accessToken, postMode, title string, mediaCount int) (*transfer.InitData, error)
	FinalizePhotos(ctx context.Context, accessToken, postMode, publishID, title string) (*transfer.PublishData, error)
	Upload(ctx context.Context, uploadURL string, payload []byte, contentType string) error
}

// Renderer converts photos into a slideshow video when the photo posting
// surface is unavailable.
type Renderer interface {
	SlideshowVideo(ctx context.Context, photoPaths []string) (string, error)
}

// Request describes one publish attempt chain for a single account.
type Request struct {
	ContentType string
	LocalFiles  []string
	Caption     string
	AccessToken string
	Mode        string
}

// Result reports how a publish ended. It is returned non-nil even on error so
// callers can record which modes were attempted.
type Result struct {
	Mode           string
	PublishID      string
	PostID         string
	AttemptedModes []string
	UsedSlideshow  bool
}

// Publisher walks the fallback chain for one delivery: photo post before
// slideshow video, direct post before draft upload.
type Publisher struct {
	api        API
	renderer   Renderer
	classifier Classifier

	EnablePhotoAPI  bool
	FallbackToDraft bool
}

func NewPublisher(api API, renderer Renderer, classifier Classifier) *Publisher {
	if classifier == nil {
		classifier = DefaultClassifier{}
	}
	return &Publisher{
		api:        api,
		renderer:   renderer,
		classifier: classifier,
	}
}

func wirePostMode(mode string) string {
	if mode == models.PostingModeDirect {
		return "DIRECT_POST"
	}
	return "MEDIA_UPLOAD"
}

// Publish runs the attempt chain and stops at the first success. Capability
// errors advance to the next attempt; transient and permanent errors abort
// immediately and are surfaced to the caller for retry handling.
func (p *Publisher) Publish(ctx context.Context, req *Request) (*Result, error) {
	result := &Result{}

	modes := []string{req.Mode}
	if req.Mode == models.PostingModeDirect && p.FallbackToDraft {
		modes = append(modes, models.PostingModeDraft)
	}

	isPhotos := req.ContentType == models.ContentTypePhoto || req.ContentType == models.ContentTypeAlbum

	// Rendered once and reused if direct fails and draft retries the video.
	slideshowPath := ""

	for _, mode := range modes {
		if isPhotos && p.EnablePhotoAPI {
			result.AttemptedModes = append(result.AttemptedModes, "photo/"+mode)
			err := p.publishPhotos(ctx, req, mode, result)
			if err == nil {
				result.Mode = mode
				return result, nil
			}
			if p.classifier.Classify(err) != ErrorCapability {
				return result, err
			}
			log.Info().Str("mode", mode).Err(err).Msg("photo post unavailable, retrying as slideshow video")
		}

		videoPath := ""
		if isPhotos {
			if slideshowPath == "" {
				rendered, err := p.renderer.SlideshowVideo(ctx, req.LocalFiles)
				if err != nil {
					return result, err
				}
				slideshowPath = rendered
			}
			videoPath = slideshowPath
			result.UsedSlideshow = true
		} else {
			if len(req.LocalFiles) == 0 {
				return result, fmt.Errorf("no local files to publish")
			}
			videoPath = req.LocalFiles[0]
		}

		result.AttemptedModes = append(result.AttemptedModes, "video/"+mode)
		err := p.publishVideo(ctx, videoPath, req, mode, result)
		if err == nil {
			result.Mode = mode
			return result, nil
		}
		if p.classifier.Classify(err) != ErrorCapability {
			return result, err
		}
		log.Info().Str("mode", mode).Err(err).Msg("publish mode unavailable, falling back")

		// A capability failure on the last mode has nowhere left to go.
		if mode == modes[len(modes)-1] {
			return result, err
		}
	}

	return result, errors.New("no publish mode available")
}

func (p *Publisher) publishVideo(ctx context.Context, videoPath string, req *Request, mode string, result *Result) error {
	payload, err := os.ReadFile(videoPath)
	if err != nil {
		return fmt.Errorf("read video %s: %w", videoPath, err)
	}

	postMode := wirePostMode(mode)
	initData, err := p.api.InitVideo(ctx, req.AccessToken, postMode, req.Caption, int64(len(payload)))
	if err != nil {
		return err
	}
	result.PublishID = initData.PublishID

	if err := p.api.Upload(ctx, initData.UploadURL, payload, "video/mp4"); err != nil {
		return err
	}

	publishData, err := p.api.FinalizeVideo(ctx, req.AccessToken, postMode, initData.PublishID, req.Caption)
	if err != nil {
		return err
	}
	result.PostID = firstNonEmpty(publishData.PostID, publishData.ItemID)
	return nil
}

func (p *Publisher) publishPhotos(ctx context.Context, req *Request, mode string, result *Result) error {
	postMode := wirePostMode(mode)
	initData, err := p.api.InitPhotos(ctx, req.AccessToken, postMode, req.Caption, len(req.LocalFiles))
	if err != nil {
		return err
	}
	result.PublishID = initData.PublishID

	if len(initData.UploadURLs) < len(req.LocalFiles) {
		return &APIError{Code: "upload_url_mismatch", Message: "photo init returned fewer upload urls than media_count"}
	}

	for i, path := range req.LocalFiles {
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read photo %s: %w", path, err)
		}
		if err := p.api.Upload(ctx, initData.UploadURLs[i], payload, media.ContentTypeOf(payload)); err != nil {
			return err
		}
	}

	publishData, err := p.api.FinalizePhotos(ctx, req.AccessToken, postMode, initData.PublishID, req.Caption)
	if err != nil {
		return err
	}
	result.PostID = firstNonEmpty(publishData.PostID, publishData.ItemID)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
