package domain

import (
	"time"
)

const (
	ImagePrefix     = "images/"
	ThumbnailPrefix = "thumbnails/"
	MetadataPrefix  = "metadata/"
	MetadataSuffix  = ".json"
)

// ImageRecord is the metadata stored next to every original image.
// Only Title, Description and Tags change after upload.
type ImageRecord struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Tags         []string   `json:"tags"`
	Filename     string     `json:"filename"`
	ContentType  string     `json:"content_type"`
	Size         int64      `json:"size"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	ImageKey     string     `json:"image_key"`
	ThumbnailKey string     `json:"thumbnail_key"`
}

// Image is a record augmented with time-limited download links.
type Image struct {
	ImageRecord
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type UploadInput struct {
	Data        []byte
	Filename    string
	ContentType string
	Title       string
	Description string
	Tags        []string
}

// MetadataUpdate carries the mutable fields; nil means unchanged.
type MetadataUpdate struct {
	Title       *string
	Description *string
	Tags        *[]string
}

func ImageKey(id string) string {
	return ImagePrefix + id
}

func ThumbnailKey(id string) string {
	return ThumbnailPrefix + id
}

func MetadataKey(id string) string {
	return MetadataPrefix + id + MetadataSuffix
}
