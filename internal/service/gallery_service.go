package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/asafaviv-devops/image-gallery/internal/codec"
	"github.com/asafaviv-devops/image-gallery/internal/config"
	"github.com/asafaviv-devops/image-gallery/internal/domain"
	"github.com/asafaviv-devops/image-gallery/internal/repository"
	"github.com/asafaviv-devops/image-gallery/pkg/utils"
)

// PresignExpiry is the lifetime of every download link handed out by reads.
const PresignExpiry = time.Hour

// GalleryService stores one logical image as three objects: the original, its
// thumbnail and a JSON metadata record. Nothing makes the three writes atomic
// and nothing serializes operations on the same id: concurrent updates lose
// one writer's change, and a failed upload may leave binary objects without
// metadata (see SweepOrphans).
type GalleryService interface {
	// Upload writes image, thumbnail and metadata in that order, with no rollback.
	Upload(ctx context.Context, in domain.UploadInput) (*domain.ImageRecord, error)
	// List returns every decodable record, newest first. Undecodable records are skipped.
	List(ctx context.Context) ([]domain.Image, error)
	// Get fails with domain.ErrNotFound when no metadata object exists.
	Get(ctx context.Context, id string) (*domain.Image, error)
	// UpdateMetadata is a whole-record read-modify-write; last writer wins.
	UpdateMetadata(ctx context.Context, id string, upd domain.MetadataUpdate) (*domain.ImageRecord, error)
	// Delete removes the three conventional keys in one batch, present or not.
	Delete(ctx context.Context, id string) error
	CheckConnection(ctx context.Context) bool
	// SweepOrphans finds image and thumbnail objects older than grace whose
	// metadata object is missing, and deletes them unless dryRun is set.
	SweepOrphans(ctx context.Context, grace time.Duration, dryRun bool) ([]string, error)
}

type galleryService struct {
	store  repository.ObjectStore
	ids    *IDGenerator
	thumbs *utils.ThumbnailDeriver
	log    *zap.Logger
	now    func() time.Time
}

func NewGalleryService(store repository.ObjectStore, cfg *config.Config, log *zap.Logger) GalleryService {
	return &galleryService{
		store:  store,
		ids:    NewIDGenerator(),
		thumbs: utils.NewThumbnailDeriver(cfg.App.ThumbnailSize, cfg.App.ThumbnailSize),
		log:    log,
		now:    time.Now,
	}
}

func (s *galleryService) Upload(ctx context.Context, in domain.UploadInput) (*domain.ImageRecord, error) {
	id, createdAt := s.ids.Next(in.Filename)
	imageKey := domain.ImageKey(id)
	thumbKey := domain.ThumbnailKey(id)

	if err := s.store.Put(ctx, imageKey, in.Data, in.ContentType); err != nil {
		return nil, fmt.Errorf("upload image %q: %w", id, err)
	}
	s.log.Info("Uploaded image", zap.String("key", imageKey))

	thumb, err := s.thumbs.Derive(in.Data)
	if err != nil {
		s.log.Warn("Failed to create thumbnail, storing original bytes",
			zap.String("id", id),
			zap.Error(err))
	}
	thumbType := thumb.ContentType
	if thumbType == "" {
		thumbType = in.ContentType
	}
	if err := s.store.Put(ctx, thumbKey, thumb.Data, thumbType); err != nil {
		return nil, fmt.Errorf("upload thumbnail %q: %w", id, err)
	}
	s.log.Info("Uploaded thumbnail", zap.String("key", thumbKey))

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	rec := &domain.ImageRecord{
		ID:           id,
		Title:        in.Title,
		Description:  in.Description,
		Tags:         tags,
		Filename:     in.Filename,
		ContentType:  in.ContentType,
		Size:         int64(len(in.Data)),
		CreatedAt:    createdAt,
		ImageKey:     imageKey,
		ThumbnailKey: thumbKey,
	}
	if err := s.putMetadata(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info("Image uploaded successfully",
		zap.String("id", id),
		zap.String("filename", in.Filename),
		zap.Int64("size", rec.Size))

	return rec, nil
}

func (s *galleryService) List(ctx context.Context) ([]domain.Image, error) {
	keys, err := s.store.ListByPrefix(ctx, domain.MetadataPrefix)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}

	images := make([]domain.Image, 0, len(keys))
	for _, key := range keys {
		rec, err := s.readMetadata(ctx, key)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				// deleted between the listing and the read
				continue
			case errors.Is(err, codec.ErrMalformedRecord):
				s.log.Warn("Skipping malformed metadata record",
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			return nil, err
		}

		img, err := s.withURLs(ctx, rec)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})

	return images, nil
}

func (s *galleryService) Get(ctx context.Context, id string) (*domain.Image, error) {
	rec, err := s.readMetadata(ctx, domain.MetadataKey(id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Info("Image not found", zap.String("id", id))
		}
		return nil, err
	}

	img, err := s.withURLs(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *galleryService) UpdateMetadata(ctx context.Context, id string, upd domain.MetadataUpdate) (*domain.ImageRecord, error) {
	rec, err := s.readMetadata(ctx, domain.MetadataKey(id))
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	if upd.Description != nil {
		rec.Description = *upd.Description
	}
	if upd.Tags != nil {
		rec.Tags = append([]string{}, (*upd.Tags)...)
	}
	updatedAt := s.now().UTC().Truncate(time.Microsecond)
	rec.UpdatedAt = &updatedAt

	if err := s.putMetadata(ctx, &rec); err != nil {
		return nil, err
	}

	s.log.Info("Updated metadata", zap.String("id", id))
	return &rec, nil
}

func (s *galleryService) Delete(ctx context.Context, id string) error {
	keys := []string{domain.ImageKey(id), domain.ThumbnailKey(id), domain.MetadataKey(id)}
	if err := s.store.DeleteMany(ctx, keys); err != nil {
		return fmt.Errorf("delete image %q: %w", id, err)
	}

	s.log.Info("Deleted image", zap.String("id", id))
	return nil
}

func (s *galleryService) CheckConnection(ctx context.Context) bool {
	if err := s.store.HeadBucket(ctx); err != nil {
		s.log.Error("Storage connection check failed", zap.Error(err))
		return false
	}
	return true
}

func (s *galleryService) SweepOrphans(ctx context.Context, grace time.Duration, dryRun bool) ([]string, error) {
	metaKeys, err := s.store.ListByPrefix(ctx, domain.MetadataPrefix)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	known := make(map[string]struct{}, len(metaKeys))
	for _, key := range metaKeys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, domain.MetadataPrefix), domain.MetadataSuffix)
		known[id] = struct{}{}
	}

	cutoff := s.now().Add(-grace)
	var orphans []string
	for _, prefix := range []string{domain.ImagePrefix, domain.ThumbnailPrefix} {
		keys, err := s.store.ListByPrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, prefix)
			if _, ok := known[id]; ok {
				continue
			}
			created, ok := ParseIDTime(id)
			if !ok || created.After(cutoff) {
				// not one of ours, or an upload that may still be in flight
				continue
			}
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)

	if dryRun || len(orphans) == 0 {
		s.log.Info("Orphan sweep finished",
			zap.Int("orphans", len(orphans)),
			zap.Bool("dry_run", dryRun))
		return orphans, nil
	}

	if err := s.store.DeleteMany(ctx, orphans); err != nil {
		return nil, fmt.Errorf("delete orphans: %w", err)
	}
	s.log.Info("Orphaned objects deleted", zap.Strings("keys", orphans))
	return orphans, nil
}

func (s *galleryService) readMetadata(ctx context.Context, key string) (domain.ImageRecord, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("read metadata: %w", err)
	}
	rec, err := codec.Decode(data)
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("read metadata %q: %w", key, err)
	}
	return rec, nil
}

func (s *galleryService) putMetadata(ctx context.Context, rec *domain.ImageRecord) error {
	data, err := codec.Encode(*rec)
	if err != nil {
		return err
	}
	key := domain.MetadataKey(rec.ID)
	if err := s.store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("write metadata %q: %w", rec.ID, err)
	}
	return nil
}

func (s *galleryService) withURLs(ctx context.Context, rec domain.ImageRecord) (domain.Image, error) {
	url, err := s.store.Presign(ctx, rec.ImageKey, PresignExpiry)
	if err != nil {
		return domain.Image{}, fmt.Errorf("presign image %q: %w", rec.ID, err)
	}
	thumbURL, err := s.store.Presign(ctx, rec.ThumbnailKey, PresignExpiry)
	if err != nil {
		return domain.Image{}, fmt.Errorf("presign thumbnail %q: %w", rec.ID, err)
	}
	return domain.Image{ImageRecord: rec, URL: url, ThumbnailURL: thumbURL}, nil
}
