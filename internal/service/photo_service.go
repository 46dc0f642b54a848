package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"path"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"

	"taglens/internal/config"
	"taglens/internal/ids"
	"taglens/internal/media/sniffer"
	"taglens/internal/models"
	"taglens/internal/repository"
	"taglens/internal/storage"
)

const (
	maxUploadBytes = 25 << 20
	viewURLExpiry  = 15 * time.Minute

	defaultThumbSize = 256
	minThumbSize     = 32
	maxThumbSize     = 1024
)

type PhotoStore interface {
	Create(ctx context.Context, photo models.Photo) error
	GetForUser(ctx context.Context, userID, photoID string) (models.Photo, error)
	ListByUser(ctx context.Context, userID string, field repository.SortField, order repository.SortOrder) ([]models.Photo, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteForUser(ctx context.Context, userID, photoID string) error
}

type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type Captioner interface {
	Describe(ctx context.Context, data []byte) (string, error)
}

type PhotoService struct {
	photos    PhotoStore
	store     ObjectStorage
	captioner Captioner
	cfg       *config.AppConfig
	log       zerolog.Logger
}

// NewPhotoService wires the photo pipeline. captioner may be nil, in which
// case photos are stored without descriptions.
func NewPhotoService(photos PhotoStore, store ObjectStorage, captioner Captioner, cfg *config.AppConfig, log zerolog.Logger) *PhotoService {
	return &PhotoService{
		photos:    photos,
		store:     store,
		captioner: captioner,
		cfg:       cfg,
		log:       log,
	}
}

type CreatePhotoInput struct {
	User        models.User
	Filename    string
	Data        []byte
	ContentType string
	TakenAt     *time.Time
}

// Create runs the upload pipeline: validate and sniff, read dimensions and
// capture time, caption best-effort, store the object, then persist the row.
// The object goes out first so a failed insert can remove it again; the
// reverse order would leave rows pointing at nothing.
func (s *PhotoService) Create(ctx context.Context, input CreatePhotoInput) (models.Photo, error) {
	input.Filename = strings.TrimSpace(input.Filename)
	switch {
	case input.Filename == "":
		return models.Photo{}, invalidInput("filename is required")
	case len(input.Filename) > 255:
		return models.Photo{}, invalidInput("filename must be at most 255 characters")
	case len(input.Data) == 0:
		return models.Photo{}, invalidInput("photo payload is empty")
	case len(input.Data) > maxUploadBytes:
		return models.Photo{}, invalidInput("photo exceeds the 25 MB limit")
	}

	head := input.Data
	if len(head) > 512 {
		head = head[:512]
	}
	if _, err := sniffer.DetectHead(head); err != nil {
		return models.Photo{}, invalidInput("unsupported image format")
	}
	contentType := sniffer.Normalize(head, input.ContentType, input.Filename)

	width, height := imageDims(input.Data)

	takenAt := input.TakenAt
	if takenAt == nil {
		takenAt = exifTakenAt(input.Data)
	}

	description := s.describe(ctx, input.Data)

	photo := models.Photo{
		ID:          ids.New(),
		UserID:      input.User.ID,
		Filename:    input.Filename,
		ContentType: contentType,
		SizeBytes:   int64(len(input.Data)),
		Width:       width,
		Height:      height,
		Description: description,
		TakenAt:     takenAt,
		CreatedAt:   time.Now().UTC(),
	}
	photo.ObjectKey = objectKey(photo, input.Filename)

	if err := s.store.Put(ctx, photo.ObjectKey, input.Data, contentType); err != nil {
		s.log.Error().Err(err).Str("object_key", photo.ObjectKey).Msg("object store put failed")
		return models.Photo{}, ErrStorageUnavailable
	}

	if err := s.photos.Create(ctx, photo); err != nil {
		if rmErr := s.store.Remove(ctx, photo.ObjectKey); rmErr != nil {
			s.log.Error().Err(rmErr).Str("object_key", photo.ObjectKey).Msg("orphan cleanup failed")
		}
		return models.Photo{}, err
	}

	s.log.Info().
		Str("photo_id", photo.ID).
		Str("user_id", photo.UserID).
		Int64("size_bytes", photo.SizeBytes).
		Bool("captioned", description != "").
		Msg("photo uploaded")
	return photo, nil
}

// describe asks the captioner under its own deadline. Captioning never fails
// an upload; any error just means an empty description.
func (s *PhotoService) describe(ctx context.Context, data []byte) string {
	if s.captioner == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Caption.Timeout)
	defer cancel()

	description, err := s.captioner.Describe(ctx, data)
	if err != nil {
		s.log.Warn().Err(err).Msg("caption request failed")
		return ""
	}
	return description
}

func (s *PhotoService) List(ctx context.Context, userID string, sortBy, order string) ([]models.Photo, error) {
	field, ok := repository.ParseSortField(sortBy)
	if !ok {
		return nil, invalidInput("sort_by must be %q or %q", repository.SortUploaded, repository.SortTaken)
	}
	dir, ok := repository.ParseSortOrder(order)
	if !ok {
		return nil, invalidInput("order must be %q or %q", repository.OrderAsc, repository.OrderDesc)
	}
	return s.photos.ListByUser(ctx, userID, field, dir)
}

func (s *PhotoService) CountForUser(ctx context.Context, userID string) (int, error) {
	return s.photos.CountByUser(ctx, userID)
}

func (s *PhotoService) Download(ctx context.Context, userID, photoID string) (models.Photo, []byte, error) {
	photo, err := s.getOwned(ctx, userID, photoID)
	if err != nil {
		return models.Photo{}, nil, err
	}

	data, err := s.store.Get(ctx, photo.ObjectKey)
	if err != nil {
		if storage.IsNotFound(err) {
			s.log.Error().Str("photo_id", photo.ID).Str("object_key", photo.ObjectKey).Msg("photo row has no object")
			return models.Photo{}, nil, ErrNotFound
		}
		s.log.Error().Err(err).Str("object_key", photo.ObjectKey).Msg("object store get failed")
		return models.Photo{}, nil, ErrStorageUnavailable
	}
	return photo, data, nil
}

func (s *PhotoService) ViewURL(ctx context.Context, userID, photoID string) (string, error) {
	photo, err := s.getOwned(ctx, userID, photoID)
	if err != nil {
		return "", err
	}

	url, err := s.store.PresignedGetURL(ctx, photo.ObjectKey, viewURLExpiry)
	if err != nil {
		s.log.Error().Err(err).Str("object_key", photo.ObjectKey).Msg("presign failed")
		return "", ErrStorageUnavailable
	}
	return url, nil
}

// Thumbnail downscales the stored photo to fit a size x size box and
// re-encodes it as JPEG.
func (s *PhotoService) Thumbnail(ctx context.Context, userID, photoID string, size int) ([]byte, error) {
	switch {
	case size <= 0:
		size = defaultThumbSize
	case size < minThumbSize:
		size = minThumbSize
	case size > maxThumbSize:
		size = maxThumbSize
	}

	_, data, err := s.Download(ctx, userID, photoID)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, invalidInput("this photo format cannot be rendered as a thumbnail")
	}

	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Delete removes the object first and the row second: a leftover row still
// points at a real photo for retry, while a leftover object with no row
// would be invisible garbage.
func (s *PhotoService) Delete(ctx context.Context, userID, photoID string, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}

	photo, err := s.getOwned(ctx, userID, photoID)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, photo.ObjectKey); err != nil && !storage.IsNotFound(err) {
		s.log.Error().Err(err).Str("object_key", photo.ObjectKey).Msg("object store remove failed")
		return ErrStorageUnavailable
	}

	if err := s.photos.DeleteForUser(ctx, userID, photoID); err != nil {
		if errors.Is(err, repository.ErrPhotoNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.log.Info().Str("photo_id", photoID).Str("user_id", userID).Msg("photo deleted")
	return nil
}

func (s *PhotoService) getOwned(ctx context.Context, userID, photoID string) (models.Photo, error) {
	if photoID == "" {
		return models.Photo{}, invalidInput("photo_id is required")
	}
	photo, err := s.photos.GetForUser(ctx, userID, photoID)
	if err != nil {
		if errors.Is(err, repository.ErrPhotoNotFound) {
			return models.Photo{}, ErrNotFound
		}
		return models.Photo{}, err
	}
	return photo, nil
}

// objectKey namespaces objects per user: <user_id>/<photo_id><ext>. The
// extension comes from the original filename when it is one we know,
// otherwise from the stored content type.
func objectKey(photo models.Photo, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if sniffer.ExtForMIME(photo.ContentType) != "" && !knownExt(ext) {
		ext = sniffer.ExtForMIME(photo.ContentType)
	}
	return photo.UserID + "/" + photo.ID + ext
}

func knownExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif":
		return true
	}
	return false
}

func imageDims(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// exifTakenAt pulls DateTimeOriginal out of JPEG EXIF data when the client
// did not supply a capture time. Best-effort only.
func exifTakenAt(data []byte) *time.Time {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	tm, err := x.DateTime()
	if err != nil {
		return nil
	}
	return &tm
}
