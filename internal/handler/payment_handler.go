package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/otoichi/internal/middleware"
	"github.com/hitoshi/otoichi/internal/model"
	"github.com/hitoshi/otoichi/internal/payment"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	// Create は楽曲購入のための決済セッションを作成する。
	Create(ctx context.Context, userID, songID int64) (*payment.CreateResult, error)
	// HandleWebhookEvent は決済プロバイダーからのイベントを処理する。
	HandleWebhookEvent(ctx context.Context, req *payment.WebhookRequest) (*payment.WebhookResult, error)
	// GetSession は決済セッションの現在状態を返す。
	GetSession(ctx context.Context, sessionID string) (*payment.SessionStatus, error)
}

// PaymentHandler は決済セッションとウェブフックのHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{
		service: service,
	}
}

// createPaymentRequest は決済セッション作成リクエストのボディ。
type createPaymentRequest struct {
	SongID int64 `json:"songId"`
}

// CreatePayment は決済セッションを作成しQRペイロードを返す。
// POST /api/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.SongID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("songIdは必須です"))
		return
	}

	result, err := h.service.Create(r.Context(), user.ID, req.SongID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// GetPayment は決済セッションの状態を返す。フロントエンドのポーリング用。
// GET /api/payments/{sessionID}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	status, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Webhook は決済プロバイダーからのイベント通知を処理する。
// ブラウザを経由しないサーバー間呼び出しのためCSRF検証の対象外。
// POST /webhooks/payment
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req payment.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	result, err := h.service.HandleWebhookEvent(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
