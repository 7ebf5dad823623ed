package store

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"questionpaper-ingest/internal/config"
	"questionpaper-ingest/internal/models"
)

const urlField = "url"

// FirestoreStore keeps records in a single Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore opens a Firestore client authenticated with the service
// account key named in cfg. When FIRESTORE_EMULATOR_HOST is set the client
// library connects to the emulator and the key file is not used.
func NewFirestoreStore(ctx context.Context, cfg *config.Config) (*FirestoreStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("firestore configuration is nil")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is empty")
	}

	var opts []option.ClientOption
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" && cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open firestore client: %w", err)
	}

	return NewFirestoreStoreFromClient(client, cfg.Collection), nil
}

// NewFirestoreStoreFromClient wraps an already opened client.
func NewFirestoreStoreFromClient(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) FindByURL(ctx context.Context, url string) ([]models.Record, error) {
	docs, err := s.client.Collection(s.collection).
		Where(urlField, "==", url).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s by url: %w", s.collection, err)
	}

	out := make([]models.Record, 0, len(docs))
	for _, d := range docs {
		var rec models.Record
		if err := d.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", s.collection, d.Ref.ID, err)
		}
		rec.ID = d.Ref.ID
		out = append(out, rec)
	}
	return out, nil
}

func (s *FirestoreStore) Insert(ctx context.Context, rec models.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(s.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("add to %s: %w", s.collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
