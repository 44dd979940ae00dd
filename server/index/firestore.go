package index

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreIndex is the optional alternate server Index backend: same
// client lifecycle and credential resolution (service-account file or
// ADC) as the SQLite backend's Config shape, restructured around
// per-user file records instead of a single shared table.
//
// Layout: users/{username}/files/{doc}, one document per (username, path).
// The document ID is not the path itself (Firestore IDs reject "/"), so
// path is also stored as a field and looked up by query.
type firestoreIndex struct {
	client *firestore.Client
}

type firestoreDoc struct {
	Username     string    `firestore:"username"`
	Path         string    `firestore:"path"`
	ContentHash  string    `firestore:"contentHash"`
	LastModified time.Time `firestore:"lastModified"`
}

func newFirestoreIndex(ctx context.Context, projectID, credentialPath string) (Index, error) {
	var (
		client *firestore.Client
		err    error
	)
	if credentialPath != "" {
		client, err = firestore.NewClient(ctx, projectID, option.WithCredentialsFile(credentialPath))
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("index: firestore.NewClient: %w", err)
	}
	return &firestoreIndex{client: client}, nil
}

func (f *firestoreIndex) Close() error {
	return f.client.Close()
}

func (f *firestoreIndex) collection(username string) *firestore.CollectionRef {
	return f.client.Collection("users").Doc(username).Collection("files")
}

func (f *firestoreIndex) lookup(ctx context.Context, username, path string) (*firestore.DocumentSnapshot, error) {
	iter := f.collection(username).Where("path", "==", path).Limit(1).Documents(ctx)
	defer iter.Stop()
	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: lookup %s/%s: %w", username, path, err)
	}
	return doc, nil
}

func (f *firestoreIndex) Get(ctx context.Context, username, path string) (Record, error) {
	doc, err := f.lookup(ctx, username, path)
	if err != nil {
		return Record{}, err
	}
	var d firestoreDoc
	if err := doc.DataTo(&d); err != nil {
		return Record{}, fmt.Errorf("index: decode %s/%s: %w", username, path, err)
	}
	return Record{Username: d.Username, Path: d.Path, ContentHash: d.ContentHash, LastModified: d.LastModified}, nil
}

func (f *firestoreIndex) Insert(ctx context.Context, rec Record) error {
	if _, err := f.lookup(ctx, rec.Username, rec.Path); err == nil {
		return ErrExists
	} else if err != ErrNotFound {
		return err
	}

	_, _, err := f.collection(rec.Username).Add(ctx, firestoreDoc{
		Username:     rec.Username,
		Path:         rec.Path,
		ContentHash:  rec.ContentHash,
		LastModified: rec.LastModified.UTC(),
	})
	if err != nil {
		return fmt.Errorf("index: insert %s/%s: %w", rec.Username, rec.Path, err)
	}
	return nil
}

func (f *firestoreIndex) Delete(ctx context.Context, username, path string) error {
	doc, err := f.lookup(ctx, username, path)
	if err != nil {
		return err
	}
	if _, err := doc.Ref.Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("index: delete %s/%s: %w", username, path, err)
	}
	return nil
}

func (f *firestoreIndex) ListByUser(ctx context.Context, username string) ([]Record, error) {
	iter := f.collection(username).OrderBy("path", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []Record
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index: list %s: %w", username, err)
		}
		var d firestoreDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("index: decode %s: %w", username, err)
		}
		out = append(out, Record{Username: d.Username, Path: d.Path, ContentHash: d.ContentHash, LastModified: d.LastModified})
	}
	return out, nil
}
