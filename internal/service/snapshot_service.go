package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"

	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/repository"
	"github.com/digkill/ChannelPassBot/internal/storage"
)

// Snapshot is a full export of users and claims.
type Snapshot struct {
	TakenAt time.Time      `json:"taken_at"`
	Users   []models.User  `json:"users"`
	Claims  []models.Claim `json:"claims"`
}

type SnapshotUploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (storage.Object, error)
}

type SnapshotService struct {
	users    *repository.UserRepository
	claims   *repository.ClaimRepository
	uploader SnapshotUploader
	log      *slog.Logger
	now      func() time.Time
}

// NewSnapshotService builds the exporter. uploader may be nil when periodic
// uploads are disabled.
func NewSnapshotService(db *sqlx.DB, uploader SnapshotUploader, log *slog.Logger) *SnapshotService {
	return &SnapshotService{
		users:    repository.NewUserRepository(db),
		claims:   repository.NewClaimRepository(db),
		uploader: uploader,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Export returns the zstd-compressed JSON snapshot.
func (s *SnapshotService) Export(ctx context.Context) ([]byte, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := s.claims.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(Snapshot{TakenAt: s.now(), Users: users, Claims: claims})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func DecodeSnapshot(data []byte) (*Snapshot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Upload exports and stores one snapshot.
func (s *SnapshotService) Upload(ctx context.Context) (storage.Object, error) {
	if s.uploader == nil {
		return storage.Object{}, fmt.Errorf("snapshot uploads are not configured")
	}
	data, err := s.Export(ctx)
	if err != nil {
		return storage.Object{}, err
	}
	obj, err := s.uploader.Upload(ctx, data, storage.ContentTypeZstdJSON)
	if err != nil {
		return storage.Object{}, err
	}
	s.log.Info("snapshot uploaded", "key", obj.Key, "bytes", len(data))
	return obj, nil
}

// Run uploads a snapshot every interval until ctx is done.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Upload(ctx); err != nil {
				s.log.Error("snapshot upload failed", "err", err)
			}
		}
	}
}
