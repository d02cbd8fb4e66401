package firestore

import (
	"errors"
	"testing"

	gfs "cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/wolfman30/clinicops/internal/docstore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToFirestoreReplacesServerTimestamp(t *testing.T) {
	out := toFirestore(docstore.Fields{
		"asignadoEn": docstore.ServerTimestamp,
		"citaId":     "c1",
		"nested":     map[string]any{"at": docstore.ServerTimestamp},
	})
	assert.Equal(t, gfs.ServerTimestamp, out["asignadoEn"])
	assert.Equal(t, "c1", out["citaId"])
	assert.Equal(t, gfs.ServerTimestamp, out["nested"].(map[string]any)["at"])
}

func TestToUpdatesSorted(t *testing.T) {
	updates := toUpdates(docstore.Fields{"status": "Finalizada", "assignedTo": "a1"})
	assert.Equal(t, []gfs.Update{
		{Path: "assignedTo", Value: "a1"},
		{Path: "status", Value: "Finalizada"},
	}, updates)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"not found", status.Error(codes.NotFound, "missing"), docstore.ErrNotFound},
		{"exists", status.Error(codes.AlreadyExists, "dup"), docstore.ErrAlreadyExists},
		{"aborted", status.Error(codes.Aborted, "contention"), docstore.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tc.in), tc.want)
		})
	}
	other := errors.New("network down")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "citas/abc", relativePath("projects/p/databases/(default)/documents/citas/abc"))
	assert.Equal(t, "citas/abc", relativePath("citas/abc"))
}
