package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taglens/internal/models"
)

var ErrPhotoNotFound = errors.New("photo not found")

// SortField and SortOrder are closed enums; every value maps to a fixed SQL
// fragment in orderClause, so request parameters never reach query text.
type SortField string

type SortOrder string

const (
	SortUploaded SortField = "uploaded"
	SortTaken    SortField = "taken"

	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

func ParseSortField(s string) (SortField, bool) {
	switch SortField(s) {
	case SortUploaded, SortTaken:
		return SortField(s), true
	case "":
		return SortUploaded, true
	}
	return "", false
}

func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case OrderAsc, OrderDesc:
		return SortOrder(s), true
	case "":
		return OrderDesc, true
	}
	return "", false
}

// orderClause returns the ORDER BY body for a validated sort. Capture-time
// sorting falls back to upload time for photos without EXIF data and breaks
// ties on upload time so the ordering is stable.
func orderClause(field SortField, order SortOrder) string {
	dir := "DESC"
	if order == OrderAsc {
		dir = "ASC"
	}
	if field == SortTaken {
		return "COALESCE(taken_at, created_at) " + dir + ", created_at " + dir
	}
	return "created_at " + dir
}

const photoColumns = `
	id, user_id, filename, object_key, content_type, size_bytes,
	width, height, description, taken_at, created_at
`

type PhotoRepository struct {
	pool *pgxpool.Pool
}

func NewPhotoRepository(pool *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

func (r *PhotoRepository) Create(ctx context.Context, photo models.Photo) error {
	const query = `
		INSERT INTO photos (
			id, user_id, filename, object_key, content_type, size_bytes,
			width, height, description, taken_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		photo.ID,
		photo.UserID,
		photo.Filename,
		photo.ObjectKey,
		photo.ContentType,
		photo.SizeBytes,
		photo.Width,
		photo.Height,
		photo.Description,
		photo.TakenAt,
	)
	return err
}

// GetForUser scopes the lookup to the owner. A photo that exists but belongs
// to someone else is indistinguishable from one that does not exist.
func (r *PhotoRepository) GetForUser(ctx context.Context, userID, photoID string) (models.Photo, error) {
	const query = `
		SELECT ` + photoColumns + `
		FROM photos WHERE id = $1 AND user_id = $2
	`

	row := r.pool.QueryRow(ctx, query, photoID, userID)
	photo, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Photo{}, ErrPhotoNotFound
		}
		return models.Photo{}, err
	}
	return photo, nil
}

func (r *PhotoRepository) ListByUser(ctx context.Context, userID string, field SortField, order SortOrder) ([]models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE user_id = $1
		ORDER BY ` + orderClause(field, order)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

func (r *PhotoRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM photos WHERE user_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PhotoRepository) DeleteForUser(ctx context.Context, userID, photoID string) error {
	const query = `DELETE FROM photos WHERE id = $1 AND user_id = $2`

	cmd, err := r.pool.Exec(ctx, query, photoID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPhotoNotFound
	}
	return nil
}

func scanPhoto(row pgx.Row) (models.Photo, error) {
	var photo models.Photo
	err := row.Scan(
		&photo.ID,
		&photo.UserID,
		&photo.Filename,
		&photo.ObjectKey,
		&photo.ContentType,
		&photo.SizeBytes,
		&photo.Width,
		&photo.Height,
		&photo.Description,
		&photo.TakenAt,
		&photo.CreatedAt,
	)
	return photo, err
}
