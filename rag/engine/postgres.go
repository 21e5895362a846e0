package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/hybridrecall/rag/types"
	"github.com/mudler/xlog"
)

// hnsw.ef_search accepts values in [1, 1000]
const maxEfSearch = 1000

// ModelEmbedder is an embedder that knows its model and can embed in batches
type ModelEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions(ctx context.Context) (int, error)
	Model() string
}

// PostgresDB serves both the vector (pgvector) and text (tsvector) sources
// from a single table per collection.
type PostgresDB struct {
	pool           *pgxpool.Pool
	collectionName string
	tableName      string
	embedder       ModelEmbedder
	embeddingDims  int
}

// NewPostgresDBCollection creates a new PostgreSQL-based collection
func NewPostgresDBCollection(ctx context.Context, collectionName, databaseURL string, embedder ModelEmbedder) (*PostgresDB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for PostgreSQL engine")
	}

	// Parse connection pool config
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	embeddingDims, err := embedder.Dimensions(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}

	pg := &PostgresDB{
		pool:           pool,
		collectionName: collectionName,
		tableName:      sanitizeTableName(collectionName),
		embedder:       embedder,
		embeddingDims:  embeddingDims,
	}

	if err := pg.setupDatabase(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	// Check for embedding model changes and recalculate if needed
	if err := pg.checkAndRecalculateEmbeddings(ctx); err != nil {
		xlog.Warn("Failed to check/recalculate embeddings", "error", err)
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	// Replace invalid characters with underscores
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	// Ensure it starts with a letter
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return "documents_" + name
}

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// mapPostgresError turns a missing table into types.ErrIndexNotFound
func mapPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", types.ErrIndexNotFound, pgErr.Message)
	}
	return err
}

func (p *PostgresDB) setupDatabase(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS collection_config (
			collection_name TEXT PRIMARY KEY,
			embedding_model TEXT NOT NULL,
			embedding_dimensions INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create collection_config table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT,
			plot TEXT NOT NULL,
			year INTEGER,
			search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', plot)) STORED,
			embedding VECTOR(%d)
		)
	`, p.tableName, p.embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_search ON %s USING GIN(search_vector)
	`, p.tableName, p.tableName))
	if err != nil {
		return fmt.Errorf("failed to create GIN index: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create HNSW index, vector search will scan the table", "error", err)
	} else {
		xlog.Info("Created HNSW index for vector search", "table", p.tableName)
	}

	return nil
}

func (p *PostgresDB) checkAndRecalculateEmbeddings(ctx context.Context) error {
	var storedModel string
	var storedDims int
	err := p.pool.QueryRow(ctx, `
		SELECT embedding_model, embedding_dimensions
		FROM collection_config
		WHERE collection_name = $1
	`, p.collectionName).Scan(&storedModel, &storedDims)

	if errors.Is(err, pgx.ErrNoRows) {
		// New collection, create config entry
		_, err = p.pool.Exec(ctx, `
			INSERT INTO collection_config (collection_name, embedding_model, embedding_dimensions)
			VALUES ($1, $2, $3)
		`, p.collectionName, p.embedder.Model(), p.embeddingDims)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to query collection config: %w", err)
	}

	if storedModel == p.embedder.Model() && storedDims == p.embeddingDims {
		return nil
	}

	xlog.Info("Embedding model changed, recalculating embeddings",
		"collection", p.collectionName,
		"old_model", storedModel,
		"new_model", p.embedder.Model(),
		"old_dims", storedDims,
		"new_dims", p.embeddingDims)

	if storedDims != p.embeddingDims {
		_, err = p.pool.Exec(ctx, fmt.Sprintf(`
			ALTER TABLE %s ALTER COLUMN embedding TYPE VECTOR(%d) USING NULL
		`, p.tableName, p.embeddingDims))
		if err != nil {
			return fmt.Errorf("failed to resize embedding column: %w", err)
		}
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT id, plot FROM %s`, p.tableName))
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	ids, plots := []string{}, []string{}
	for rows.Next() {
		var id, plot string
		if err := rows.Scan(&id, &plot); err != nil {
			continue
		}
		ids = append(ids, id)
		plots = append(plots, plot)
	}
	rows.Close()

	// Generate new embeddings in batches
	batchSize := 10
	for i := 0; i < len(plots); i += batchSize {
		end := min(i+batchSize, len(plots))

		embeddings, err := p.embedder.EmbedBatch(ctx, plots[i:end])
		if err != nil {
			xlog.Warn("Failed to generate embeddings batch", "error", err)
			continue
		}

		for j, embedding := range embeddings {
			_, err = p.pool.Exec(ctx, fmt.Sprintf(`
				UPDATE %s SET embedding = $1::vector WHERE id = $2
			`, p.tableName), formatVector(embedding), ids[i+j])
			if err != nil {
				xlog.Warn("Failed to update embedding", "id", ids[i+j], "error", err)
			}
		}
	}

	_, err = p.pool.Exec(ctx, `
		UPDATE collection_config
		SET embedding_model = $1, embedding_dimensions = $2, updated_at = NOW()
		WHERE collection_name = $3
	`, p.embedder.Model(), p.embeddingDims, p.collectionName)
	if err != nil {
		return fmt.Errorf("failed to update collection config: %w", err)
	}

	return nil
}

func (p *PostgresDB) Count() int {
	var count int
	err := p.pool.QueryRow(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		xlog.Error("Failed to count documents", "error", err)
		return 0
	}
	return count
}

func (p *PostgresDB) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName))
	if err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	_, err = p.pool.Exec(ctx, "DELETE FROM collection_config WHERE collection_name = $1", p.collectionName)
	if err != nil {
		return fmt.Errorf("failed to delete collection config: %w", err)
	}

	if err := p.setupDatabase(ctx); err != nil {
		return err
	}
	return p.checkAndRecalculateEmbeddings(ctx)
}

// Store embeds the plots in one batch and upserts the documents
func (p *PostgresDB) Store(ctx context.Context, docs ...types.DocumentRef) error {
	if len(docs) == 0 {
		return nil
	}

	plots := make([]string, len(docs))
	for i, doc := range docs {
		plots[i] = doc.Plot
	}

	embeddings, err := p.embedder.EmbedBatch(ctx, plots)
	if err != nil {
		return fmt.Errorf("error getting embeddings: %w", err)
	}

	batch := &pgx.Batch{}
	for i, doc := range docs {
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (id, title, plot, year, embedding)
			VALUES ($1, $2, $3, $4, $5::vector)
			ON CONFLICT (id) DO UPDATE
			SET title = EXCLUDED.title, plot = EXCLUDED.plot, year = EXCLUDED.year, embedding = EXCLUDED.embedding
		`, p.tableName), doc.ID, doc.Title, doc.Plot, doc.Year, formatVector(embeddings[i]))
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert documents: %w", mapPostgresError(err))
	}

	return nil
}

func (p *PostgresDB) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", p.tableName), ids)
	return mapPostgresError(err)
}

// VectorSearch orders documents by cosine distance. numCandidates becomes
// the HNSW search width for the query.
func (p *PostgresDB) VectorSearch(ctx context.Context, vector []float32, numCandidates, limit int) ([]types.DocumentRef, error) {
	if len(vector) != p.embeddingDims {
		return nil, fmt.Errorf("%w: index has %d, query has %d", types.ErrDimensionMismatch, p.embeddingDims, len(vector))
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	efSearch := min(max(numCandidates, limit), maxEfSearch)
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)); err != nil {
		return nil, fmt.Errorf("failed to set hnsw.ef_search: %w", err)
	}

	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT id, COALESCE(title, ''), plot, COALESCE(year, 0)
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, p.tableName), formatVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", mapPostgresError(err))
	}

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	return docs, tx.Commit(ctx)
}

// TextSearch ranks the plots matching the query with ts_rank_cd
func (p *PostgresDB) TextSearch(ctx context.Context, text string, limit int) ([]types.DocumentRef, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, COALESCE(title, ''), plot, COALESCE(year, 0)
		FROM %s, plainto_tsquery('english', $1) query
		WHERE search_vector @@ query
		ORDER BY ts_rank_cd(search_vector, query) DESC, id
		LIMIT $2
	`, p.tableName), text, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute text search: %w", mapPostgresError(err))
	}

	return scanDocuments(rows)
}

func scanDocuments(rows pgx.Rows) ([]types.DocumentRef, error) {
	defer rows.Close()

	docs := []types.DocumentRef{}
	for rows.Next() {
		var d types.DocumentRef
		if err := rows.Scan(&d.ID, &d.Title, &d.Plot, &d.Year); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}

	return docs, mapPostgresError(rows.Err())
}

func (p *PostgresDB) Close() {
	p.pool.Close()
}
