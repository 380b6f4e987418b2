package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/otoichi/internal/model"
)

// PostgresGenreRepo はPostgreSQLを使用したジャンルリポジトリ。
type PostgresGenreRepo struct {
	db *sql.DB
}

// NewPostgresGenreRepo はPostgresGenreRepoを生成する。
func NewPostgresGenreRepo(db *sql.DB) *PostgresGenreRepo {
	return &PostgresGenreRepo{db: db}
}

// List は全ジャンルを名前昇順で返す。
func (r *PostgresGenreRepo) List(ctx context.Context) ([]model.Genre, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM genres ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	defer rows.Close()

	var genres []model.Genre
	for rows.Next() {
		var genre model.Genre
		if err := rows.Scan(&genre.ID, &genre.Name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, genre)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate genres: %w", err)
	}

	return genres, nil
}

// compile-time interface check
var _ GenreRepository = (*PostgresGenreRepo)(nil)
