package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"retro-backend/internal/apperrors"
	"retro-backend/internal/models"
)

// FeedbackCollection is the document collection used by FirestoreStore
const FeedbackCollection = "feedback"

// FirestoreStore keeps feedback as documents. The field layout matches the
// documents written by the earlier survey app so existing data stays readable.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	schema     models.Schema
	now        func() time.Time
}

type feedbackDocument struct {
	Sprint      string   `firestore:"sprint"`
	Team        string   `firestore:"team"`
	MemberName  string   `firestore:"member_name"`
	Role        string   `firestore:"role,omitempty"`
	Responses   []string `firestore:"responses"`
	Comments    string   `firestore:"comments"`
	SubmittedAt string   `firestore:"submitted_at"`
}

// OpenFirestore connects to projectID. An empty credentialsFile falls back to
// application default credentials (or the emulator when FIRESTORE_EMULATOR_HOST is set).
func OpenFirestore(ctx context.Context, projectID, credentialsFile string, schema models.Schema) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return NewFirestoreStore(client, schema), nil
}

func NewFirestoreStore(client *firestore.Client, schema models.Schema) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: FeedbackCollection,
		schema:     schema,
		now:        time.Now,
	}
}

func (s *FirestoreStore) Insert(ctx context.Context, sub models.Submission) (string, error) {
	sub, err := s.schema.Normalize(sub)
	if err != nil {
		return "", err
	}

	record := sub.ToFeedback()
	record.SubmittedAt = s.now()

	// Add is a single-document write; the generated id comes back with it
	ref, _, err := s.client.Collection(s.collection).Add(ctx, toDocument(record))
	if err != nil {
		return "", apperrors.NewStorageError("failed to save feedback", err)
	}

	return ref.ID, nil
}

func (s *FirestoreStore) ListAll(ctx context.Context) ([]models.Feedback, error) {
	docs, err := s.client.Collection(s.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, apperrors.NewStorageError("failed to load feedback", err)
	}

	records := make([]models.Feedback, 0, len(docs))
	for _, doc := range docs {
		var d feedbackDocument
		if err := doc.DataTo(&d); err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("failed to decode feedback %s", doc.Ref.ID), err)
		}
		records = append(records, fromDocument(doc.Ref.ID, d))
	}

	return records, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func toDocument(f models.Feedback) feedbackDocument {
	return feedbackDocument{
		Sprint:      f.Sprint,
		Team:        f.Team,
		MemberName:  f.MemberName,
		Role:        f.Role,
		Responses:   f.Responses,
		Comments:    f.Comments,
		SubmittedAt: f.SubmittedAt.Format(models.TimestampLayout),
	}
}

func fromDocument(id string, d feedbackDocument) models.Feedback {
	// Timestamps are local wall-clock strings; an unparsable one is left zero
	submittedAt, _ := time.ParseInLocation(models.TimestampLayout, d.SubmittedAt, time.Local)

	responses := d.Responses
	if responses == nil {
		responses = []string{}
	}

	return models.Feedback{
		ID:          id,
		Sprint:      d.Sprint,
		Team:        d.Team,
		MemberName:  d.MemberName,
		Role:        d.Role,
		Responses:   responses,
		Comments:    d.Comments,
		SubmittedAt: submittedAt,
	}
}
