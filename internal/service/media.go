package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/metrics"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
	"just_us/pkg/storage"
)

// ObjectStorage - S3-совместимое хранилище медиа.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
	List(ctx context.Context, prefix, cursor string, limit int) ([]storage.Object, string, error)
}

type MediaService interface {
	UploadImage(ctx context.Context, dataURL string) (*domain.Upload, error)
	UploadAudio(ctx context.Context, dataURL string) (*domain.Upload, error)
	Gallery(ctx context.Context, cursor string, limit int) (*domain.GalleryPage, error)
}

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

var audioTypes = map[string]bool{
	"video/webm":      true,
	"video/mp4":       true,
	"application/ogg": true,
}

type mediaService struct {
	storage ObjectStorage
	cfg     config.MediaConfig
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

func NewMediaService(storage ObjectStorage, cfg config.MediaConfig, m *metrics.Metrics, log logger.Logger) MediaService {
	return &mediaService{
		storage: storage,
		cfg:     cfg,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *mediaService) UploadImage(ctx context.Context, dataURL string) (*domain.Upload, error) {
	data, mime, err := s.decode(dataURL)
	if err != nil {
		return nil, err
	}
	if !imageTypes[mime.String()] {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedMedia, mime.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnsupportedMedia, err)
	}

	upload, err := s.store(ctx, s.cfg.ImageFolder, domain.ResourceTypeImage, data, mime)
	if err != nil {
		return nil, err
	}
	upload.Width, upload.Height = cfg.Width, cfg.Height
	return upload, nil
}

func (s *mediaService) UploadAudio(ctx context.Context, dataURL string) (*domain.Upload, error) {
	data, mime, err := s.decode(dataURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mime.String(), "audio/") && !audioTypes[mime.String()] {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedMedia, mime.String())
	}
	return s.store(ctx, s.cfg.AudioFolder, domain.ResourceTypeAudio, data, mime)
}

// Gallery листает папку изображений. Ключи построены так, что
// лексикографический порядок совпадает с порядком от новых к старым.
func (s *mediaService) Gallery(ctx context.Context, cursor string, limit int) (*domain.GalleryPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}

	objects, next, err := s.storage.List(ctx, s.cfg.ImageFolder+"/", cursor, limit)
	if err != nil {
		s.log.Error("Failed to list gallery", "error", err)
		return nil, err
	}

	page := &domain.GalleryPage{Images: make([]*domain.Upload, 0, len(objects)), NextCursor: next}
	for _, obj := range objects {
		ext := path.Ext(obj.Key)
		page.Images = append(page.Images, &domain.Upload{
			SecureURL:    obj.URL,
			PublicID:     strings.TrimSuffix(obj.Key, ext),
			Folder:       s.cfg.ImageFolder,
			ResourceType: domain.ResourceTypeImage,
			Format:       strings.TrimPrefix(ext, "."),
			Bytes:        obj.Size,
			CreatedAt:    obj.LastModified,
		})
	}
	return page, nil
}

// decode разбирает data URL вида data:<mime>;base64,<payload>.
// Тип определяется по содержимому, заявленный игнорируется.
func (s *mediaService) decode(dataURL string) ([]byte, *mimetype.MIME, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, nil, fmt.Errorf("%w: not a data url", apperrors.ErrBadRequest)
	}
	meta, payload, ok := strings.Cut(dataURL[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, nil, fmt.Errorf("%w: data url must be base64", apperrors.ErrBadRequest)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > s.cfg.MaxUploadBytes+3 {
		return nil, nil, apperrors.ErrPayloadTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, nil, apperrors.ErrPayloadTooLarge
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", apperrors.ErrBadRequest)
	}
	return data, mimetype.Detect(data), nil
}

func (s *mediaService) store(ctx context.Context, folder, resourceType string, data []byte, mime *mimetype.MIME) (*domain.Upload, error) {
	now := s.now()
	key := objectKey(folder, now, mime.Extension())

	url, err := s.storage.Put(ctx, key, data, mime.String())
	if err != nil {
		s.log.Error("Failed to upload media", "error", err, "folder", folder)
		return nil, err
	}
	s.metrics.Uploads.WithLabelValues(resourceType).Inc()

	return &domain.Upload{
		SecureURL:    url,
		PublicID:     strings.TrimSuffix(key, mime.Extension()),
		Folder:       folder,
		ResourceType: resourceType,
		Format:       strings.TrimPrefix(mime.Extension(), "."),
		Bytes:        int64(len(data)),
		CreatedAt:    now,
	}, nil
}

// objectKey: более новые файлы получают меньший префикс.
func objectKey(folder string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%019d-%s%s", folder, math.MaxInt64-at.UnixNano(), uuid.NewString(), ext)
}
