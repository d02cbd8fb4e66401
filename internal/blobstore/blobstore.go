// Package blobstore stores chat attachments behind a narrow upload/list contract.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when a referenced object does not exist.
var ErrNotFound = errors.New("blobstore: object not found")

// Ref identifies an uploaded object.
type Ref struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
	UpdatedAt   time.Time
}

// Store uploads objects and hands out download URLs. Uploading to an existing
// path replaces the object.
type Store interface {
	Upload(ctx context.Context, path string, body io.Reader, contentType string) (Ref, error)
	DownloadURL(ctx context.Context, ref Ref) (string, error)
	List(ctx context.Context, prefix string) ([]Ref, error)
}

// DocumentPath is where chat attachments live.
func DocumentPath(chatID, fileName string) string {
	return "documents/" + chatID + "/" + baseName(fileName)
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
