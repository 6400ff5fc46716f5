package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pagemill/crawl-ingest-service/transform"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtifactRepository is the PostgreSQL implementation of ArtifactService.
// The replace procedures own the delete-then-insert transaction; this layer
// just marshals the transformer output to jsonb.
type ArtifactRepository struct {
	db *pgxpool.Pool
}

// NewArtifactRepository creates a new PostgreSQL ArtifactRepository.
func NewArtifactRepository(db *pgxpool.Pool) ArtifactService {
	return &ArtifactRepository{db: db}
}

func (r *ArtifactRepository) callProc(ctx context.Context, proc string, pageID int64, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", proc, err)
	}
	if _, err := r.db.Exec(ctx, fmt.Sprintf(`CALL %s($1, $2)`, proc), pageID, blob); err != nil {
		return fmt.Errorf("calling %s: %w", proc, err)
	}
	return nil
}

// ReplaceBlocks supersedes all stored blocks for the page.
func (r *ArtifactRepository) ReplaceBlocks(ctx context.Context, pageID int64, blocks []transform.Block) error {
	return r.callProc(ctx, "sp_replace_blocks", pageID, blocks)
}

// ReplaceLinks supersedes all stored links for the page.
func (r *ArtifactRepository) ReplaceLinks(ctx context.Context, pageID int64, links []transform.Link) error {
	return r.callProc(ctx, "sp_replace_page_links", pageID, links)
}

// ReplaceChunks supersedes all stored chunks for the page.
func (r *ArtifactRepository) ReplaceChunks(ctx context.Context, pageID int64, chunks []transform.Chunk) error {
	return r.callProc(ctx, "sp_replace_chunks", pageID, chunks)
}

// UpsertChunkVersions records version hits. A page with no hits is a no-op.
func (r *ArtifactRepository) UpsertChunkVersions(ctx context.Context, pageID int64, versions []transform.VersionHit) error {
	if len(versions) == 0 {
		return nil
	}
	return r.callProc(ctx, "sp_upsert_chunk_versions", pageID, versions)
}
