// Package song は楽曲カタログのビジネスロジックを提供する。
package song

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/otoichi/internal/model"
	"github.com/hitoshi/otoichi/internal/repository"
	"github.com/hitoshi/otoichi/internal/security"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service は楽曲の検索・取得・出品・再生カウントを提供する。
type Service struct {
	songRepo     repository.SongRepository
	purchaseRepo repository.PurchaseRepository
	genreRepo    repository.GenreRepository
	sanitizer    security.ContentSanitizerService
	logger       *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	songRepo repository.SongRepository,
	purchaseRepo repository.PurchaseRepository,
	genreRepo repository.GenreRepository,
	sanitizer security.ContentSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		songRepo:     songRepo,
		purchaseRepo: purchaseRepo,
		genreRepo:    genreRepo,
		sanitizer:    sanitizer,
		logger:       logger,
	}
}

// SongView は一覧・詳細応答の楽曲表現。
// Ownedはリクエストユーザーごとに計算される。未ログイン時は常にfalse。
type SongView struct {
	Song  *model.Song
	Owned bool
}

// SearchResult は楽曲検索の応答。
type SearchResult struct {
	Songs  []SongView
	Total  int
	Limit  int
	Offset int
}

// Search は楽曲をタイトル・説明文で部分一致検索する。
// userは未ログインの場合nil。limitは1..100にクランプされる。
func (s *Service) Search(ctx context.Context, user *model.User, q string, limit, offset int) (*SearchResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	songs, total, err := s.songRepo.Search(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search songs: %w", err)
	}

	owned := map[int64]bool{}
	if user != nil {
		owned, err = s.purchaseRepo.ListSongIDsByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list purchases: %w", err)
		}
	}

	views := make([]SongView, 0, len(songs))
	for _, song := range songs {
		views = append(views, SongView{Song: song, Owned: owned[song.ID]})
	}

	return &SearchResult{Songs: views, Total: total, Limit: limit, Offset: offset}, nil
}

// Get は楽曲詳細をowned判定付きで返す。
// 見つからない場合はSONG_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, user *model.User, songID int64) (*SongView, error) {
	song, err := s.songRepo.FindByID(ctx, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to find song: %w", err)
	}
	if song == nil {
		return nil, model.NewSongNotFoundError(songID)
	}

	owned := false
	if user != nil {
		owned, err = s.purchaseRepo.Exists(ctx, user.ID, songID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ownership: %w", err)
		}
	}

	return &SongView{Song: song, Owned: owned}, nil
}

// CreateInput は楽曲出品の入力。パスはアップロード済みオブジェクトのパスを指す。
type CreateInput struct {
	Title       string
	Description string
	Price       float64
	PreviewPath string
	FullPath    string
	AvatarURL   string
	GenreIDs    []int64
}

// Create は楽曲を出品する。説明文はサニタイズして保存する。
// タイトル未指定・負の価格はINVALID_REQUESTを返す。
func (s *Service) Create(ctx context.Context, sellerID int64, input CreateInput) (*model.Song, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewInvalidRequestError("タイトルは必須です")
	}
	if input.Price < 0 {
		return nil, model.NewInvalidRequestError("価格は0以上を指定してください")
	}

	song := &model.Song{
		Title:       title,
		Description: s.sanitizer.Sanitize(input.Description),
		Price:       input.Price,
		PreviewPath: input.PreviewPath,
		FullPath:    input.FullPath,
		AvatarURL:   input.AvatarURL,
		SellerID:    sellerID,
	}

	if err := s.songRepo.Create(ctx, song, input.GenreIDs); err != nil {
		return nil, fmt.Errorf("failed to create song: %w", err)
	}

	s.logger.Info("song created",
		slog.Int64("song_id", song.ID),
		slog.Int64("seller_id", sellerID),
	)

	return song, nil
}

// Buy は決済セッションを経由しない直接購入を行う。
// 現在価格で購入記録を冪等に作成し、既所有の場合もowned=trueで成功を返す。
func (s *Service) Buy(ctx context.Context, userID, songID int64) (bool, error) {
	song, err := s.songRepo.FindByID(ctx, songID)
	if err != nil {
		return false, fmt.Errorf("failed to find song: %w", err)
	}
	if song == nil {
		return false, model.NewSongNotFoundError(songID)
	}

	if err := s.purchaseRepo.Create(ctx, userID, songID, song.Price); err != nil {
		return false, fmt.Errorf("failed to create purchase: %w", err)
	}

	s.logger.Info("song purchased directly",
		slog.Int64("song_id", songID),
		slog.Int64("user_id", userID),
	)

	return true, nil
}

// Listen は再生カウンタをインクリメントする。
// 楽曲が存在しない場合はSONG_NOT_FOUNDを返す。
func (s *Service) Listen(ctx context.Context, songID int64) error {
	song, err := s.songRepo.FindByID(ctx, songID)
	if err != nil {
		return fmt.Errorf("failed to find song: %w", err)
	}
	if song == nil {
		return model.NewSongNotFoundError(songID)
	}

	if err := s.songRepo.IncrementListens(ctx, songID); err != nil {
		return fmt.Errorf("failed to increment listens: %w", err)
	}
	return nil
}

// ListGenres は全ジャンルを返す。
func (s *Service) ListGenres(ctx context.Context) ([]model.Genre, error) {
	genres, err := s.genreRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	return genres, nil
}
