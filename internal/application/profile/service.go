package profile

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-accounts-api/internal/domain"
)

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	Save(ctx context.Context, u *domain.User) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

type Service interface {
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	UploadImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (string, error)
}

type service struct {
	repo    userStore
	objects objectStore
}

func NewService(repo userStore, objects objectStore) Service {
	return &service{repo: repo, objects: objects}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.Profile{
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		ProfileImage:  u.ProfileImage,
	}, nil
}

// UploadImage stores the image and points the record's profile_image at it.
func (s *service) UploadImage(ctx context.Context, userID, filename, contentType string, r io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("profile image must be an image, got %s: %w", contentType, domain.ErrBadRequest)
	}
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("profiles/%s/%s", userID, sanitizeFilename(filename))
	url, err := s.objects.Upload(ctx, key, r, contentType)
	if err != nil {
		return "", err
	}
	u.ProfileImage = url
	if err := s.repo.Save(ctx, u); err != nil {
		return "", err
	}
	return url, nil
}

// sanitizeFilename strips any directory components and path separators.
func sanitizeFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload"
	}
	return base
}
