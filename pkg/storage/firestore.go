package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreDatabase implements the Database interface using Google Cloud
// Firestore. State is kept in documents of a single collection.
type FirestoreDatabase struct {
	client     *firestore.Client
	projectID  string
	database   string
	collection string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreDatabase {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	collection := lflag.String("firestore-collection", "enever", "Firestore collection holding the state documents")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreDatabase{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.collection = *collection

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreDatabase) Validate() error {
	// Project ID may be inferred from the environment.
	if f.collection == "" {
		return fmt.Errorf("firestore-collection is required")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreDatabase) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreDatabase) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreDatabase) counterDoc() *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc("request_counter")
}

// GetRequestCounter reads the counter from the "request_counter" document.
func (f *FirestoreDatabase) GetRequestCounter(ctx context.Context) (types.RequestCounter, error) {
	doc, err := f.counterDoc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.RequestCounter{}, nil
		}
		return types.RequestCounter{}, fmt.Errorf("failed to fetch request counter doc: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "request counter doc missing json")
		return types.RequestCounter{}, fmt.Errorf("request counter document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "request counter doc json not string")
		return types.RequestCounter{}, fmt.Errorf("request counter 'json' field is not a string")
	}

	var c types.RequestCounter
	if err := json.Unmarshal([]byte(jsonStr), &c); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal request counter json", slog.Any("err", err))
		return types.RequestCounter{}, fmt.Errorf("failed to unmarshal request counter json: %w", err)
	}
	return c, nil
}

// SetRequestCounter saves the counter to the "request_counter" document. The
// month and count are also stored as fields for querying in the console.
func (f *FirestoreDatabase) SetRequestCounter(ctx context.Context, counter types.RequestCounter) error {
	jsonBytes, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("failed to marshal request counter: %w", err)
	}
	_, err = f.counterDoc().Set(ctx, map[string]interface{}{
		"json":  string(jsonBytes),
		"month": counter.Month,
		"count": counter.Count,
	})
	if err != nil {
		return fmt.Errorf("failed to save request counter: %w", err)
	}
	return nil
}
