package firestore

import (
	"errors"
	"sort"
	"strings"

	gfs "cloud.google.com/go/firestore"
	"github.com/wolfman30/clinicops/internal/docstore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toFirestore swaps docstore sentinels for their Firestore equivalents.
func toFirestore(data docstore.Fields) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) any {
	switch val := v.(type) {
	case docstore.Fields:
		return toFirestore(val)
	case map[string]any:
		return toFirestore(docstore.Fields(val))
	}
	if docstore.IsServerTimestamp(v) {
		return gfs.ServerTimestamp
	}
	return v
}

// toUpdates turns a patch into field updates in a stable order.
func toUpdates(patch docstore.Fields) []gfs.Update {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	updates := make([]gfs.Update, 0, len(keys))
	for _, k := range keys {
		updates = append(updates, gfs.Update{Path: k, Value: toValue(patch[k])})
	}
	return updates
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrConflict) || errors.Is(err, docstore.ErrAlreadyExists) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return docstore.ErrNotFound
	case codes.AlreadyExists:
		return docstore.ErrAlreadyExists
	case codes.Aborted, codes.FailedPrecondition:
		return errors.Join(docstore.ErrConflict, err)
	}
	return err
}

// relativePath strips "projects/p/databases/d/documents/" from a resource name.
func relativePath(name string) string {
	const marker = "/documents/"
	if i := strings.Index(name, marker); i >= 0 {
		return name[i+len(marker):]
	}
	return name
}
