package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/otoichi/internal/model"
)

// PostgresSongRepo はPostgreSQLを使用した楽曲リポジトリ。
type PostgresSongRepo struct {
	db *sql.DB
}

// NewPostgresSongRepo はPostgresSongRepoを生成する。
func NewPostgresSongRepo(db *sql.DB) *PostgresSongRepo {
	return &PostgresSongRepo{db: db}
}

// FindByID は指定IDの楽曲をジャンル付きで取得する。見つからない場合はnilを返す。
func (r *PostgresSongRepo) FindByID(ctx context.Context, id int64) (*model.Song, error) {
	song := &model.Song{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, price::float8, preview_path, full_path, avatar_url, seller_id, listens, created_at
		 FROM songs WHERE id = $1`,
		id,
	).Scan(&song.ID, &song.Title, &song.Description, &song.Price, &song.PreviewPath, &song.FullPath, &song.AvatarURL, &song.SellerID, &song.Listens, &song.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find song by ID: %w", err)
	}

	genres, err := r.genresForSongs(ctx, []int64{song.ID})
	if err != nil {
		return nil, err
	}
	song.Genres = genres[song.ID]

	return song, nil
}

// Search はタイトル・説明文の部分一致検索で楽曲一覧と総件数を返す。
// qが空の場合は全件を対象とする。作成日時降順。
func (r *PostgresSongRepo) Search(ctx context.Context, q string, limit, offset int) ([]*model.Song, int, error) {
	pattern := "%" + q + "%"

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM songs
		 WHERE $1 = '' OR title ILIKE $2 OR description ILIKE $2`,
		q, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count songs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, price::float8, preview_path, full_path, avatar_url, seller_id, listens, created_at
		 FROM songs
		 WHERE $1 = '' OR title ILIKE $2 OR description ILIKE $2
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		q, pattern, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search songs: %w", err)
	}
	defer rows.Close()

	var songs []*model.Song
	var ids []int64
	for rows.Next() {
		song := &model.Song{}
		if err := rows.Scan(&song.ID, &song.Title, &song.Description, &song.Price, &song.PreviewPath, &song.FullPath, &song.AvatarURL, &song.SellerID, &song.Listens, &song.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan song: %w", err)
		}
		songs = append(songs, song)
		ids = append(ids, song.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate songs: %w", err)
	}

	genres, err := r.genresForSongs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, song := range songs {
		song.Genres = genres[song.ID]
	}

	return songs, total, nil
}

// Create は楽曲とジャンル関連を同一トランザクションで作成する。
// song.IDとsong.CreatedAtを設定して返る。
func (r *PostgresSongRepo) Create(ctx context.Context, song *model.Song, genreIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO songs (title, description, price, preview_path, full_path, avatar_url, seller_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		song.Title, song.Description, song.Price, song.PreviewPath, song.FullPath, song.AvatarURL, song.SellerID,
	).Scan(&song.ID, &song.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	for _, genreID := range genreIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO song_genres (song_id, genre_id) VALUES ($1, $2)`,
			song.ID, genreID,
		)
		if err != nil {
			return fmt.Errorf("failed to attach genre %d: %w", genreID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// IncrementListens は再生カウンタをインクリメントする。
func (r *PostgresSongRepo) IncrementListens(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE songs SET listens = listens + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment listens: %w", err)
	}
	return nil
}

// genresForSongs は楽曲ID群のジャンルを1クエリでまとめて取得する。
func (r *PostgresSongRepo) genresForSongs(ctx context.Context, songIDs []int64) (map[int64][]model.Genre, error) {
	result := make(map[int64][]model.Genre, len(songIDs))
	if len(songIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT sg.song_id, g.id, g.name
		 FROM song_genres sg
		 JOIN genres g ON g.id = sg.genre_id
		 WHERE sg.song_id = ANY($1)
		 ORDER BY g.name ASC`,
		pq.Array(songIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load genres: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var songID int64
		var genre model.Genre
		if err := rows.Scan(&songID, &genre.ID, &genre.Name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		result[songID] = append(result[songID], genre)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate genres: %w", err)
	}

	return result, nil
}

// compile-time interface check
var _ SongRepository = (*PostgresSongRepo)(nil)
