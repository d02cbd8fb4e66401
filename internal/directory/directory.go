// Package directory is the CRUD surface over the patient, doctor and agent
// collections. Records are schemaless; callers see the stored fields plus id.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinicops/internal/docstore"
	"github.com/wolfman30/clinicops/pkg/logging"
)

const (
	PatientsCollection = "pacientes"
	DoctorsCollection  = "doctores"
	AgentsCollection   = "agentes"
)

// ErrEmptyRecord is returned when create or update carries no fields.
var ErrEmptyRecord = errors.New("directory: record has no fields")

// Record is one directory document.
type Record struct {
	ID   string
	Data docstore.Fields
}

// MarshalJSON flattens the fields next to the id.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Data)+1)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID
	return json.Marshal(out)
}

// Directory manages one collection.
type Directory struct {
	store      docstore.Store
	collection string
	orderBy    string
	search     []string
	logger     *logging.Logger
}

// Patients are searchable by name and identification.
func Patients(store docstore.Store, logger *logging.Logger) *Directory {
	return newDirectory(store, PatientsCollection, "", []string{"name", "nombres", "apellidos", "identification", "identificacion"}, logger)
}

// Doctors list in doctorName order.
func Doctors(store docstore.Store, logger *logging.Logger) *Directory {
	return newDirectory(store, DoctorsCollection, "doctorName", []string{"doctorName", "specialty"}, logger)
}

// Agents list in roster order.
func Agents(store docstore.Store, logger *logging.Logger) *Directory {
	return newDirectory(store, AgentsCollection, "idAgente", []string{"name", "agentName", "email"}, logger)
}

func newDirectory(store docstore.Store, collection, orderBy string, search []string, logger *logging.Logger) *Directory {
	if store == nil {
		panic("directory: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{store: store, collection: collection, orderBy: orderBy, search: search, logger: logger}
}

// Collection returns the backing collection name.
func (d *Directory) Collection() string { return d.collection }

func (d *Directory) List(ctx context.Context) ([]Record, error) {
	q := docstore.Collection(d.collection)
	if d.orderBy != "" {
		q = q.OrderBy(d.orderBy, false)
	}
	docs, err := d.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("directory: list %s: %w", d.collection, err)
	}
	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Record{ID: doc.ID, Data: doc.Data})
	}
	return out, nil
}

func (d *Directory) Get(ctx context.Context, id string) (Record, error) {
	doc, err := d.store.Get(ctx, docstore.Join(d.collection, id))
	if err != nil {
		return Record{}, fmt.Errorf("directory: get %s/%s: %w", d.collection, id, err)
	}
	return Record{ID: doc.ID, Data: doc.Data}, nil
}

// Create stores data with a server createdAt. An empty id lets the store pick
// one; an explicit id fails with docstore.ErrAlreadyExists when taken.
func (d *Directory) Create(ctx context.Context, id string, data docstore.Fields) (string, error) {
	data = sanitize(data)
	if len(data) == 0 {
		return "", ErrEmptyRecord
	}
	data["createdAt"] = docstore.ServerTimestamp
	if id == "" {
		newID, err := d.store.Add(ctx, d.collection, data)
		if err != nil {
			return "", fmt.Errorf("directory: create in %s: %w", d.collection, err)
		}
		id = newID
	} else if err := d.store.Create(ctx, docstore.Join(d.collection, id), data); err != nil {
		return "", fmt.Errorf("directory: create %s/%s: %w", d.collection, id, err)
	}
	d.logger.Info("directory record created", "collection", d.collection, "id", id)
	return id, nil
}

// Update merges patch into an existing record.
func (d *Directory) Update(ctx context.Context, id string, patch docstore.Fields) error {
	patch = sanitize(patch)
	if len(patch) == 0 {
		return ErrEmptyRecord
	}
	if err := d.store.Update(ctx, docstore.Join(d.collection, id), patch); err != nil {
		return fmt.Errorf("directory: update %s/%s: %w", d.collection, id, err)
	}
	return nil
}

func (d *Directory) Delete(ctx context.Context, id string) error {
	if err := d.store.Delete(ctx, docstore.Join(d.collection, id)); err != nil {
		return fmt.Errorf("directory: delete %s/%s: %w", d.collection, id, err)
	}
	d.logger.Info("directory record deleted", "collection", d.collection, "id", id)
	return nil
}

// Search returns records where any searchable field contains text,
// case-insensitively. Blank text returns everything.
func (d *Directory) Search(ctx context.Context, text string) ([]Record, error) {
	all, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return all, nil
	}
	var out []Record
	for _, r := range all {
		for _, field := range d.search {
			if strings.Contains(strings.ToLower(r.Data.String(field)), needle) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

// sanitize copies data without the id and createdAt keys, which are owned by the store.
func sanitize(data docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(data))
	for k, v := range data {
		if k == "id" || k == "createdAt" {
			continue
		}
		out[k] = v
	}
	return out
}
