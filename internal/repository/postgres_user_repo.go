package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/otoichi/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, avatar_url, COALESCE(mezon_id, ''), role, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.AvatarURL, &user.MezonID, &user.Role, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// UpsertByEmail はemailをキーにユーザーを作成または更新する。
// OAuthログインのたびに呼ばれ、IdPから取得した最新のname/avatar_urlを反映する。
// mezon_idは非空の値でのみ上書きする（Googleログインが既存のMezon紐付けを消さないため）。
func (r *PostgresUserRepo) UpsertByEmail(ctx context.Context, user *model.User) (*model.User, error) {
	out := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, name, avatar_url, mezon_id)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 ON CONFLICT (email) DO UPDATE SET
		   name = EXCLUDED.name,
		   avatar_url = EXCLUDED.avatar_url,
		   mezon_id = COALESCE(EXCLUDED.mezon_id, users.mezon_id),
		   updated_at = now()
		 RETURNING id, email, name, avatar_url, COALESCE(mezon_id, ''), role, created_at, updated_at`,
		user.Email, user.Name, user.AvatarURL, user.MezonID,
	).Scan(&out.ID, &out.Email, &out.Name, &out.AvatarURL, &out.MezonID, &out.Role, &out.CreatedAt, &out.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return out, nil
}

// Create はユーザーを直接作成する。emailが重複する場合はAPIError(EMAIL_EXISTS)を返す。
func (r *PostgresUserRepo) Create(ctx context.Context, email, name string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, name)
		 VALUES ($1, $2)
		 RETURNING id, email, name, avatar_url, COALESCE(mezon_id, ''), role, created_at, updated_at`,
		email, name,
	).Scan(&user.ID, &user.Email, &user.Name, &user.AvatarURL, &user.MezonID, &user.Role, &user.CreatedAt, &user.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return nil, model.NewEmailExistsError(email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// List は全ユーザーをID降順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, name, avatar_url, COALESCE(mezon_id, ''), role, created_at, updated_at
		 FROM users ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.AvatarURL, &user.MezonID, &user.Role, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
