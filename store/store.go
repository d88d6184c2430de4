// Package store keeps a history of enrichment results in PostgreSQL.
// Only numeric results are stored, never image bytes.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Tutortoise/face-enrichment-service/models"
)

// Store manages the PostgreSQL connection. A pgx.Conn is not safe for
// concurrent use, so every operation holds mu.
type Store struct {
	conn *pgx.Conn
	mu   sync.Mutex
}

// Record is one processed image and its faces.
type Record struct {
	RequestID string
	Source    string
	FaceCount int
	CreatedAt time.Time
	Faces     []models.EnrichedFace
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS face_requests (
			request_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			face_count INT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_results (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL REFERENCES face_requests(request_id) ON DELETE CASCADE,
			face_index INT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			x DOUBLE PRECISION NOT NULL,
			y DOUBLE PRECISION NOT NULL,
			width DOUBLE PRECISION NOT NULL,
			height DOUBLE PRECISION NOT NULL,
			age DOUBLE PRECISION,
			age_confidence DOUBLE PRECISION,
			gender TEXT,
			gender_index INT,
			gender_confidence DOUBLE PRECISION,
			emotion TEXT,
			emotion_index INT,
			emotion_confidence DOUBLE PRECISION
		);
		CREATE INDEX IF NOT EXISTS face_results_request_id_idx ON face_results (request_id);
		CREATE INDEX IF NOT EXISTS face_requests_created_at_idx ON face_requests (created_at);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close(ctx)
}

// SaveResults stores one image's faces in a single transaction. Saving the
// same requestID again replaces the earlier result.
func (s *Store) SaveResults(ctx context.Context, requestID, source string, faces []models.EnrichedFace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM face_requests WHERE request_id = $1", requestID)
	batch.Queue(`
		INSERT INTO face_requests (request_id, source, face_count, created_at)
		VALUES ($1, $2, $3, NOW())
	`, requestID, source, len(faces))

	for i, f := range faces {
		row := newFaceRow(f)
		batch.Queue(`
			INSERT INTO face_results (
				request_id, face_index, confidence, x, y, width, height,
				age, age_confidence, gender, gender_index, gender_confidence,
				emotion, emotion_index, emotion_confidence
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, requestID, i, f.Face.Confidence, f.Face.X, f.Face.Y, f.Face.Width, f.Face.Height,
			row.age, row.ageConfidence, row.gender, row.genderIndex, row.genderConfidence,
			row.emotion, row.emotionIndex, row.emotionConfidence)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save results for %s: %w", requestID, err)
	}
	return tx.Commit(ctx)
}

// Recent returns the latest limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT request_id, source, face_count, created_at
		FROM face_requests
		ORDER BY created_at DESC, request_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	var records []Record
	index := map[string]int{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RequestID, &r.Source, &r.FaceCount, &r.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[r.RequestID] = len(records)
		records = append(records, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.RequestID
	}

	faceRows, err := s.conn.Query(ctx, `
		SELECT request_id, confidence, x, y, width, height,
			age, age_confidence, gender, gender_index, gender_confidence,
			emotion, emotion_index, emotion_confidence
		FROM face_results
		WHERE request_id = ANY($1)
		ORDER BY request_id, face_index
	`, ids)
	if err != nil {
		return nil, err
	}
	defer faceRows.Close()

	for faceRows.Next() {
		var requestID string
		var f models.EnrichedFace
		var row faceRow
		if err := faceRows.Scan(&requestID, &f.Face.Confidence, &f.Face.X, &f.Face.Y, &f.Face.Width, &f.Face.Height,
			&row.age, &row.ageConfidence, &row.gender, &row.genderIndex, &row.genderConfidence,
			&row.emotion, &row.emotionIndex, &row.emotionConfidence); err != nil {
			return nil, err
		}
		row.apply(&f)

		i := index[requestID]
		records[i].Faces = append(records[i].Faces, f)
	}

	return records, faceRows.Err()
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_results CASCADE;
		DROP TABLE IF EXISTS face_requests CASCADE;
	`)
	if err != nil {
		return err
	}
	return initSchema(ctx, s.conn)
}

// faceRow holds the nullable enrichment columns.
type faceRow struct {
	age               *float64
	ageConfidence     *float64
	gender            *string
	genderIndex       *int32
	genderConfidence  *float64
	emotion           *string
	emotionIndex      *int32
	emotionConfidence *float64
}

func newFaceRow(f models.EnrichedFace) faceRow {
	var row faceRow
	if f.Age != nil {
		row.age = &f.Age.Estimate
		row.ageConfidence = &f.Age.Confidence
	}
	if f.Gender != nil {
		idx := int32(f.Gender.Index)
		row.gender = &f.Gender.Label
		row.genderIndex = &idx
		row.genderConfidence = &f.Gender.Confidence
	}
	if f.Emotion != nil {
		idx := int32(f.Emotion.Index)
		row.emotion = &f.Emotion.Label
		row.emotionIndex = &idx
		row.emotionConfidence = &f.Emotion.Confidence
	}
	return row
}

func (row faceRow) apply(f *models.EnrichedFace) {
	if row.age != nil {
		f.Age = &models.AgeResult{Estimate: *row.age, Confidence: deref(row.ageConfidence)}
	}
	if row.gender != nil {
		f.Gender = &models.ClassificationResult{Label: *row.gender, Index: derefIndex(row.genderIndex), Confidence: deref(row.genderConfidence)}
	}
	if row.emotion != nil {
		f.Emotion = &models.ClassificationResult{Label: *row.emotion, Index: derefIndex(row.emotionIndex), Confidence: deref(row.emotionConfidence)}
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefIndex(v *int32) int {
	if v == nil {
		return -1
	}
	return int(*v)
}
