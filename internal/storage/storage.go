// Package storage holds the remote object storage used for ticket media.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
)

// ObjectStorage uploads byte buffers and deletes them by remote id.
type ObjectStorage interface {
	Upload(ctx context.Context, data []byte, objectPath string) (domain.MediaEntry, error)
	Delete(ctx context.Context, remoteID string) error
}

// SplitObjectPath separates "tickets/UID/name" into folder "tickets/UID" and name "name".
func SplitObjectPath(objectPath string) (folder, name string) {
	objectPath = strings.Trim(objectPath, "/")
	folder, name = path.Split(objectPath)
	return strings.TrimSuffix(folder, "/"), name
}
