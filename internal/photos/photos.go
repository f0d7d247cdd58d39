// Package photos manages student ID photos kept in object storage. The API
// hands out presigned URLs; image bytes never pass through the service.
package photos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"campus-access-backend/internal/model"
)

var (
	// ErrUnsupportedType is returned for anything but JPEG, PNG or WebP.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrNoPhoto is returned when the student has no photo on file.
	ErrNoPhoto = errors.New("student has no photo")
	// ErrDisabled is returned when no bucket is configured.
	ErrDisabled = errors.New("photo storage is not configured")
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ObjectStorage presigns transfers for object keys.
type ObjectStorage interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Students is the part of the tag registry photos need.
type Students interface {
	Student(ctx context.Context, usn string) (*model.Student, error)
	SetPhoto(ctx context.Context, usn, key string) error
}

// Upload tells the client where to PUT the image.
type Upload struct {
	Key         string    `json:"key"`
	URL         string    `json:"upload_url"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service hands out presigned URLs for student photos and tracks their keys.
type Service struct {
	storage  ObjectStorage
	students Students
	ttl      time.Duration
	now      func() time.Time
}

// NewService creates the photo service. A nil storage disables it.
func NewService(storage ObjectStorage, students Students, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{storage: storage, students: students, ttl: ttl, now: time.Now}
}

// RequestUpload presigns a PUT for a new photo and points the student at its
// key. The previous photo object is deleted.
func (s *Service) RequestUpload(ctx context.Context, usn, contentType string) (Upload, error) {
	if s.storage == nil {
		return Upload{}, ErrDisabled
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := extensions[contentType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}

	student, err := s.students.Student(ctx, usn)
	if err != nil {
		return Upload{}, err
	}

	now := s.now()
	key := fmt.Sprintf("students/%s-%d.%s", student.USN, now.Unix(), ext)
	url, err := s.storage.PresignPut(ctx, key, contentType, s.ttl)
	if err != nil {
		return Upload{}, fmt.Errorf("failed to presign upload: %w", err)
	}
	if err := s.students.SetPhoto(ctx, student.USN, key); err != nil {
		return Upload{}, err
	}
	if student.ImageKey != "" && student.ImageKey != key {
		s.deleteObject(ctx, student.ImageKey)
	}
	return Upload{Key: key, URL: url, ContentType: contentType, ExpiresAt: now.Add(s.ttl)}, nil
}

// URL presigns a GET for the student's current photo.
func (s *Service) URL(ctx context.Context, usn string) (string, error) {
	if s.storage == nil {
		return "", ErrDisabled
	}
	student, err := s.students.Student(ctx, usn)
	if err != nil {
		return "", err
	}
	if student.ImageKey == "" {
		return "", ErrNoPhoto
	}
	url, err := s.storage.PresignGet(ctx, student.ImageKey, s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return url, nil
}

// Remove clears the student's photo and deletes the object.
func (s *Service) Remove(ctx context.Context, usn string) error {
	if s.storage == nil {
		return ErrDisabled
	}
	student, err := s.students.Student(ctx, usn)
	if err != nil {
		return err
	}
	if student.ImageKey == "" {
		return ErrNoPhoto
	}
	if err := s.students.SetPhoto(ctx, usn, ""); err != nil {
		return err
	}
	s.deleteObject(ctx, student.ImageKey)
	return nil
}

func (s *Service) deleteObject(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		log.Printf("Failed to delete photo object %s: %v", key, err)
	}
}
