package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/otoichi/internal/middleware"
	"github.com/hitoshi/otoichi/internal/model"
	"github.com/hitoshi/otoichi/internal/song"
)

// SongServiceInterface は楽曲ハンドラーが必要とするサービスインターフェース。
type SongServiceInterface interface {
	// Search は楽曲をタイトル・説明文で部分一致検索する。
	Search(ctx context.Context, user *model.User, q string, limit, offset int) (*song.SearchResult, error)
	// Get は楽曲詳細をowned判定付きで返す。
	Get(ctx context.Context, user *model.User, songID int64) (*song.SongView, error)
	// Create は楽曲を出品する。
	Create(ctx context.Context, sellerID int64, input song.CreateInput) (*model.Song, error)
	// Buy は決済セッションを経由しない直接購入を行う。
	Buy(ctx context.Context, userID, songID int64) (bool, error)
	// Listen は再生カウンタをインクリメントする。
	Listen(ctx context.Context, songID int64) error
	// ListGenres は全ジャンルを返す。
	ListGenres(ctx context.Context) ([]model.Genre, error)
}

// MediaGateInterface はストリーミングURL発行のためのインターフェース。
// プレビューは公開、フル音源は購入者・出品者・管理者のみアクセスできる。
type MediaGateInterface interface {
	// ResolveStreamURL はアクセス権を検査し署名付きURLを返す。
	ResolveStreamURL(ctx context.Context, user *model.User, songID int64, kind string) (string, error)
}

// SongHandler は楽曲管理とストリーミングのHTTPハンドラー。
type SongHandler struct {
	service SongServiceInterface
	gate    MediaGateInterface
}

// NewSongHandler はSongHandlerを生成する。
func NewSongHandler(service SongServiceInterface, gate MediaGateInterface) *SongHandler {
	return &SongHandler{
		service: service,
		gate:    gate,
	}
}

// createSongRequest は楽曲出品リクエストのボディ。
type createSongRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	PreviewPath string  `json:"previewPath"`
	FullPath    string  `json:"fullPath"`
	AvatarURL   string  `json:"avatarUrl"`
	GenreIDs    []int64 `json:"genreIds"`
}

// genreResponse はジャンルのAPIレスポンス。
type genreResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// songResponse は楽曲のAPIレスポンス。
// フル音源のパスは含めない。音源へのアクセスは必ずstreamエンドポイントを経由する。
type songResponse struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       float64         `json:"price"`
	AvatarURL   string          `json:"avatarUrl"`
	SellerID    int64           `json:"sellerId"`
	Listens     int64           `json:"listens"`
	Genres      []genreResponse `json:"genres"`
	Owned       bool            `json:"owned"`
}

// listSongsResponse は楽曲検索のAPIレスポンス。
type listSongsResponse struct {
	Songs  []songResponse `json:"songs"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListSongs は楽曲を検索する。未ログインでも呼び出せる。
// GET /api/songs?q=&limit=&offset=
func (h *SongHandler) ListSongs(w http.ResponseWriter, r *http.Request) {
	user := middleware.OptionalUserFromContext(r.Context())

	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	result, err := h.service.Search(r.Context(), user, q, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	songs := make([]songResponse, 0, len(result.Songs))
	for _, view := range result.Songs {
		songs = append(songs, toSongResponse(view.Song, view.Owned))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listSongsResponse{
		Songs:  songs,
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	})
}

// GetSong は楽曲詳細を取得する。
// GET /api/songs/{id}
func (h *SongHandler) GetSong(w http.ResponseWriter, r *http.Request) {
	songID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("楽曲IDが不正です"))
		return
	}

	user := middleware.OptionalUserFromContext(r.Context())

	view, err := h.service.Get(r.Context(), user, songID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSongResponse(view.Song, view.Owned))
}

// StreamSong はアクセス権を検査し署名付きストリーミングURLを返す。
// GET /api/songs/{id}/stream?kind=preview|full
func (h *SongHandler) StreamSong(w http.ResponseWriter, r *http.Request) {
	songID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("楽曲IDが不正です"))
		return
	}

	user := middleware.OptionalUserFromContext(r.Context())
	kind := r.URL.Query().Get("kind")

	url, err := h.gate.ResolveStreamURL(r.Context(), user, songID, kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"url": url})
}

// CreateSong は楽曲を出品する。
// POST /api/songs
func (h *SongHandler) CreateSong(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createSongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	created, err := h.service.Create(r.Context(), user.ID, song.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		PreviewPath: req.PreviewPath,
		FullPath:    req.FullPath,
		AvatarURL:   req.AvatarURL,
		GenreIDs:    req.GenreIDs,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toSongResponse(created, false))
}

// BuySong は現在価格での直接購入を行う。再実行しても結果は変わらない。
// POST /api/songs/{id}/buy
func (h *SongHandler) BuySong(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	songID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("楽曲IDが不正です"))
		return
	}

	owned, err := h.service.Buy(r.Context(), user.ID, songID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    true,
		"owned": owned,
	})
}

// ListenSong は再生カウンタをインクリメントする。
// POST /api/songs/{id}/listen
func (h *SongHandler) ListenSong(w http.ResponseWriter, r *http.Request) {
	songID, err := parseIDParam(r, "id")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("楽曲IDが不正です"))
		return
	}

	if err := h.service.Listen(r.Context(), songID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// ListGenres は全ジャンルを返す。
// GET /api/genres
func (h *SongHandler) ListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.service.ListGenres(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]genreResponse, 0, len(genres))
	for _, g := range genres {
		resp = append(resp, genreResponse{ID: g.ID, Name: g.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"genres": resp})
}

// --- ヘルパー関数 ---

// toSongResponse はmodel.SongからAPIレスポンスに変換する。
func toSongResponse(s *model.Song, owned bool) songResponse {
	genres := make([]genreResponse, 0, len(s.Genres))
	for _, g := range s.Genres {
		genres = append(genres, genreResponse{ID: g.ID, Name: g.Name})
	}
	return songResponse{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Price:       s.Price,
		AvatarURL:   s.AvatarURL,
		SellerID:    s.SellerID,
		Listens:     s.Listens,
		Genres:      genres,
		Owned:       owned,
	}
}

// parseIDParam はchiのURLパラメータを数値IDとしてパースする。
func parseIDParam(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeMissingSessionID,
		model.ErrCodeAmountMismatch:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeSongNotFound, model.ErrCodeUserNotFound,
		model.ErrCodeSessionNotFound, model.ErrCodeAudioNotAvailable:
		return http.StatusNotFound
	case model.ErrCodeAlreadyOwned, model.ErrCodeEmailExists:
		return http.StatusConflict
	case model.ErrCodeSignedURLFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
