package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SrujanaJ313/claimant-gateway/internal/crypto"
	"github.com/SrujanaJ313/claimant-gateway/internal/log"
	"github.com/SrujanaJ313/claimant-gateway/internal/pkce"
	"github.com/SrujanaJ313/claimant-gateway/internal/tokens"
)

// Ensure FirestoreStore implements the Store interface
var _ Store = (*FirestoreStore)(nil)
var _ AttemptSweeper = (*FirestoreStore)(nil)

// FirestoreStore persists sessions in Google Cloud Firestore for deployments
// that need tokens to survive a gateway restart. Token material is encrypted
// before it is written.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	encryptor  crypto.Encryptor
}

// sessionDoc is the Firestore representation of a session's token set.
// Tokens is the encrypted JSON of the whole set; one field, one write, so an
// overwrite is atomic.
type sessionDoc struct {
	Tokens    string    `firestore:"tokens"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// attemptDoc is the Firestore representation of pending PKCE material.
type attemptDoc struct {
	Material  string    `firestore:"material"`
	CreatedAt time.Time `firestore:"created_at"`
}

// NewFirestoreStore connects to Firestore and returns a persistent store.
func NewFirestoreStore(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStore, error) {
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore store ready", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreStore{
		client:     client,
		collection: collection,
		encryptor:  encryptor,
	}, nil
}

func (s *FirestoreStore) sessions() *firestore.CollectionRef {
	return s.client.Collection(s.collection + "_sessions")
}

func (s *FirestoreStore) attempts() *firestore.CollectionRef {
	return s.client.Collection(s.collection + "_attempts")
}

// SaveTokens encrypts and writes the whole token set in a single Set call.
func (s *FirestoreStore) SaveTokens(ctx context.Context, sessionID string, set *tokens.TokenSet) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshaling token set: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("encrypting token set: %w", err)
	}

	_, err = s.sessions().Doc(sessionID).Set(ctx, sessionDoc{
		Tokens:    sealed,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// LoadTokens reads and decrypts the session's token set.
func (s *FirestoreStore) LoadTokens(ctx context.Context, sessionID string) (*tokens.TokenSet, error) {
	snap, err := s.sessions().Doc(sessionID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNoTokens
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	raw, err := s.encryptor.Decrypt(doc.Tokens)
	if err != nil {
		return nil, fmt.Errorf("decrypting token set: %w", err)
	}

	var set tokens.TokenSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("unmarshaling token set: %w", err)
	}
	return &set, nil
}

// ClearTokens deletes the session document. Deleting an absent document is
// not an error in Firestore.
func (s *FirestoreStore) ClearTokens(ctx context.Context, sessionID string) error {
	if _, err := s.sessions().Doc(sessionID).Delete(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// SavePKCE encrypts and stores the pending login attempt.
func (s *FirestoreStore) SavePKCE(ctx context.Context, sessionID string, material *pkce.Material) error {
	raw, err := json.Marshal(material)
	if err != nil {
		return fmt.Errorf("marshaling pkce material: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(string(raw))
	if err != nil {
		return fmt.Errorf("encrypting pkce material: %w", err)
	}

	_, err = s.attempts().Doc(sessionID).Set(ctx, attemptDoc{
		Material:  sealed,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("writing pkce material: %w", err)
	}
	return nil
}

// TakePKCE reads and deletes the attempt in one transaction so a revisited
// callback can never reuse the material.
func (s *FirestoreStore) TakePKCE(ctx context.Context, sessionID string) (*pkce.Material, error) {
	ref := s.attempts().Doc(sessionID)

	var sealed string
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc attemptDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		sealed = doc.Material
		return tx.Delete(ref)
	})
	if status.Code(err) == codes.NotFound {
		return nil, ErrNoPKCEMaterial
	}
	if err != nil {
		return nil, fmt.Errorf("taking pkce material: %w", err)
	}

	raw, err := s.encryptor.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypting pkce material: %w", err)
	}
	var material pkce.Material
	if err := json.Unmarshal([]byte(raw), &material); err != nil {
		return nil, fmt.Errorf("unmarshaling pkce material: %w", err)
	}
	return &material, nil
}

// ClearPKCE deletes any pending attempt for the session.
func (s *FirestoreStore) ClearPKCE(ctx context.Context, sessionID string) error {
	if _, err := s.attempts().Doc(sessionID).Delete(ctx); err != nil {
		return fmt.Errorf("deleting pkce material: %w", err)
	}
	return nil
}

// CleanupAbandonedAttempts deletes PKCE documents older than pkceTTL.
func (s *FirestoreStore) CleanupAbandonedAttempts(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-pkceTTL)
	iter := s.attempts().Where("created_at", "<", cutoff).Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("iterating abandoned attempts: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			log.LogWarnWithFields("storage", "Failed to delete abandoned attempt", map[string]any{
				"doc":   snap.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
