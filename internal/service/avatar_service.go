package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"contactbook/internal/errs"
	"contactbook/internal/ids"
	"contactbook/internal/media/sniffer"
	"contactbook/internal/models"
)

type AvatarStore interface {
	PutAvatar(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

type AvatarUsers interface {
	UpdateAvatar(ctx context.Context, email, url string) (models.User, error)
}

type AvatarService struct {
	store    AvatarStore
	users    AvatarUsers
	maxBytes int64
	log      zerolog.Logger
}

func NewAvatarService(store AvatarStore, users AvatarUsers, maxBytes int64, log zerolog.Logger) *AvatarService {
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &AvatarService{
		store:    store,
		users:    users,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "avatar").Logger(),
	}
}

// Upload stores an image as the user's avatar. The format is taken from the
// file's bytes; a declared content type that disagrees is rejected.
func (s *AvatarService) Upload(ctx context.Context, user models.User, file io.Reader, declared string) (models.User, error) {
	const op = "avatar.upload"

	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		return models.User{}, errs.E(errs.KindValidation, op, "unreadable file", err)
	}
	if len(data) == 0 {
		return models.User{}, errs.E(errs.KindValidation, op, "empty file", nil)
	}
	if int64(len(data)) > s.maxBytes {
		return models.User{}, errs.E(errs.KindValidation, op, fmt.Sprintf("file exceeds %d bytes", s.maxBytes), nil)
	}

	result, err := sniffer.DetectHead(data)
	if errors.Is(err, sniffer.ErrUnknownType) {
		return models.User{}, errs.E(errs.KindValidation, op, "unsupported image type", err)
	}
	if declared != "" && declared != "application/octet-stream" && declared != result.MIME {
		return models.User{}, errs.E(errs.KindValidation, op,
			fmt.Sprintf("content type mismatch: declared %s, actual %s", declared, result.MIME), nil)
	}

	key := fmt.Sprintf("avatars/%d/%s.%s", user.ID, ids.New(), result.Ext())
	url, err := s.store.PutAvatar(ctx, key, bytes.NewReader(data), int64(len(data)), result.MIME)
	if err != nil {
		return models.User{}, errs.E(errs.KindStorageUnavailable, op, "avatar storage unavailable", err)
	}

	updated, err := s.users.UpdateAvatar(ctx, user.Email, url)
	if err != nil {
		return models.User{}, err
	}
	s.log.Info().Int64("user_id", user.ID).Str("format", string(result.Type)).Int("bytes", len(data)).Msg("avatar updated")
	return updated, nil
}
