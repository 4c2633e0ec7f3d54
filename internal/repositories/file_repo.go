package repositories

import (
	"context"
	"errors"

	"github.com/freelance-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FileRepo struct {
	pool *pgxpool.Pool
}

func NewFileRepo(pool *pgxpool.Pool) *FileRepo {
	return &FileRepo{pool: pool}
}

func (r *FileRepo) Create(ctx context.Context, f *models.File) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO files (id, file_name, mime_type, path)
		VALUES ($1, $2, $3, $4)
	`, f.ID, f.FileName, f.MimeType, f.Path)
	return err
}

func (r *FileRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var f models.File
	err := r.pool.QueryRow(ctx, `
		SELECT id, file_name, mime_type, path FROM files WHERE id = $1
	`, id).Scan(&f.ID, &f.FileName, &f.MimeType, &f.Path)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
