// Package codec converts image records to and from the JSON body of the metadata object.
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/asafaviv-devops/image-gallery/internal/domain"
)

// TimeLayout keeps microsecond precision so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

var ErrMalformedRecord = errors.New("malformed metadata record")

// Layouts accepted when reading; the zone-less one is read as UTC.
var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

type document struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  *string  `json:"description"` // null when empty
	Tags         []string `json:"tags"`
	Filename     string   `json:"filename"`
	ContentType  string   `json:"content_type"`
	Size         int64    `json:"size"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    *string  `json:"updated_at,omitempty"`
	ImageKey     string   `json:"image_key"`
	ThumbnailKey string   `json:"thumbnail_key"`
}

func Encode(rec domain.ImageRecord) ([]byte, error) {
	doc := document{
		ID:           rec.ID,
		Title:        rec.Title,
		Tags:         rec.Tags,
		Filename:     rec.Filename,
		ContentType:  rec.ContentType,
		Size:         rec.Size,
		CreatedAt:    FormatTime(rec.CreatedAt),
		ImageKey:     rec.ImageKey,
		ThumbnailKey: rec.ThumbnailKey,
	}
	if rec.Description != "" {
		doc.Description = &rec.Description
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if rec.UpdatedAt != nil {
		updated := FormatTime(*rec.UpdatedAt)
		doc.UpdatedAt = &updated
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode metadata %q: %w", rec.ID, err)
	}
	return data, nil
}

// Decode parses a metadata body. Unparsable timestamps do not fail the record:
// created_at becomes the zero time and updated_at is dropped.
func Decode(data []byte) (domain.ImageRecord, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ImageRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if doc.ID == "" {
		return domain.ImageRecord{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}

	rec := domain.ImageRecord{
		ID:           doc.ID,
		Title:        doc.Title,
		Tags:         doc.Tags,
		Filename:     doc.Filename,
		ContentType:  doc.ContentType,
		Size:         doc.Size,
		ImageKey:     doc.ImageKey,
		ThumbnailKey: doc.ThumbnailKey,
	}
	if doc.Description != nil {
		rec.Description = *doc.Description
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if t, ok := ParseTime(doc.CreatedAt); ok {
		rec.CreatedAt = t
	}
	if doc.UpdatedAt != nil {
		if t, ok := ParseTime(*doc.UpdatedAt); ok {
			rec.UpdatedAt = &t
		}
	}
	return rec, nil
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, bool) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
