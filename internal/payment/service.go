// Package payment は決済セッションのライフサイクル管理を提供する。
//
// 決済セッションは pending → authorized → captured と遷移し、
// 期限切れスイープにより pending → expired にも遷移する。
// 資金移動の事実はウェブフックが正であり、expiredセッションに対しても
// successイベントはキャプチャを成立させる。
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/otoichi/internal/model"
	"github.com/hitoshi/otoichi/internal/repository"
)

// ウェブフック処理結果のoutcomeラベル。メトリクスとログで共有する。
const (
	outcomeAuthorized = "authorized"
	outcomeCaptured   = "captured"
	outcomeDuplicate  = "duplicate"
	outcomeIgnored    = "ignored"
	outcomeMismatch   = "amount_mismatch"
	outcomeError      = "error"
)

// Metrics は決済サービスが記録するメトリクスの narrow interface。
type Metrics interface {
	RecordSessionCreated()
	RecordWebhookEvent(eventType string, outcome string)
	RecordCapture()
	RecordAmountMismatch()
}

// ServiceConfig は決済サービスの設定。
type ServiceConfig struct {
	ReceiverID   string        // QRペイロードの受取人ID
	ReceiverName string        // QRペイロードの受取人表示名
	SessionTTL   time.Duration // クライアントに通知するセッション有効期間
}

// Service は決済セッションの作成・ウェブフック処理・照会を提供する。
type Service struct {
	sessionRepo  repository.PaymentSessionRepository
	purchaseRepo repository.PurchaseRepository
	songRepo     repository.SongRepository
	metrics      Metrics
	config       ServiceConfig
	logger       *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	sessionRepo repository.PaymentSessionRepository,
	purchaseRepo repository.PurchaseRepository,
	songRepo repository.SongRepository,
	metrics Metrics,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessionRepo:  sessionRepo,
		purchaseRepo: purchaseRepo,
		songRepo:     songRepo,
		metrics:      metrics,
		config:       config,
		logger:       logger,
	}
}

// QRPayload はQRコードにエンコードされる送金指示。
// noteフィールドにセッションIDを埋め込み、ウェブフックの突合キーとする。
type QRPayload struct {
	ReceiverID   string `json:"receiver_id"`
	ReceiverName string `json:"receiver_name"`
	Amount       int64  `json:"amount"`
	Note         string `json:"note"`
	Type         string `json:"type"`
}

// CreateResult は決済セッション作成の応答。
type CreateResult struct {
	SessionID string    `json:"sessionId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	QRPayload QRPayload `json:"qrPayload"`
	QRString  string    `json:"qrString"`
	ExpiresIn int       `json:"expiresIn"` // 秒
}

// Create は楽曲購入のための決済セッションを作成する。
// 楽曲が存在しない場合はSONG_NOT_FOUND、購入済みの場合はALREADY_OWNEDを返す。
// 金額は楽曲価格を丸めた整数VNDで、最低1とする。
func (s *Service) Create(ctx context.Context, userID, songID int64) (*CreateResult, error) {
	song, err := s.songRepo.FindByID(ctx, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to find song: %w", err)
	}
	if song == nil {
		return nil, model.NewSongNotFoundError(songID)
	}

	owned, err := s.purchaseRepo.Exists(ctx, userID, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ownership: %w", err)
	}
	if owned {
		return nil, model.NewAlreadyOwnedError()
	}

	amount := int64(math.Round(song.Price))
	if amount < 1 {
		amount = 1
	}

	sessionID := uuid.NewString()
	ps := &model.PaymentSession{
		SessionID: sessionID,
		UserID:    userID,
		SongID:    songID,
		Amount:    amount,
		Status:    model.PaymentStatusPending,
		Note:      sessionID,
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, ps); err != nil {
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	payload := QRPayload{
		ReceiverID:   s.config.ReceiverID,
		ReceiverName: s.config.ReceiverName,
		Amount:       amount,
		Note:         sessionID,
		Type:         "payment",
	}
	qrBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr payload: %w", err)
	}

	s.metrics.RecordSessionCreated()
	s.logger.Info("payment session created",
		slog.String("session_id", sessionID),
		slog.Int64("user_id", userID),
		slog.Int64("song_id", songID),
		slog.Int64("amount", amount),
	)

	return &CreateResult{
		SessionID: sessionID,
		Amount:    amount,
		Currency:  "VND",
		QRPayload: payload,
		QRString:  string(qrBytes),
		ExpiresIn: int(s.config.SessionTTL.Seconds()),
	}, nil
}

// WebhookRequest は決済プロバイダーからのウェブフックボディ。
type WebhookRequest struct {
	EventType string          `json:"event_type"`
	Amount    int64           `json:"amount"`
	Metadata  WebhookMetadata `json:"metadata"`
}

// WebhookMetadata はウェブフックのmetadataフィールド。
type WebhookMetadata struct {
	SessionID string `json:"session_id"`
}

// WebhookResult はウェブフック処理の応答。
type WebhookResult struct {
	OK      bool `json:"ok"`
	Ignored bool `json:"ignored,omitempty"`
}

// HandleWebhookEvent は決済プロバイダーからのイベントを処理する。
//
// 共通前処理: session_id欠落→MISSING_SESSION_ID、セッション未検出→
// PAYMENT_SESSION_NOT_FOUND、正の金額がセッション金額と異なる→AMOUNT_MISMATCH。
// 金額チェックはイベント種別のディスパッチより先に行う。
//
// authorized_amount: statusをauthorizedに更新する。
// success: キャプチャ。既にcapturedの場合は書き込みなしで成功を返す（再送冪等）。
// その他のイベント種別は無視し {ok:true, ignored:true} を返す。
func (s *Service) HandleWebhookEvent(ctx context.Context, req *WebhookRequest) (*WebhookResult, error) {
	if req.Metadata.SessionID == "" {
		s.metrics.RecordWebhookEvent(req.EventType, outcomeError)
		return nil, model.NewMissingSessionIDError()
	}

	session, err := s.sessionRepo.FindBySessionID(ctx, req.Metadata.SessionID)
	if err != nil {
		s.metrics.RecordWebhookEvent(req.EventType, outcomeError)
		return nil, fmt.Errorf("failed to find payment session: %w", err)
	}
	if session == nil {
		s.metrics.RecordWebhookEvent(req.EventType, outcomeError)
		return nil, model.NewPaymentSessionNotFoundError(req.Metadata.SessionID)
	}

	// 金額0以下のイベントは金額未通知とみなしチェックをスキップする
	if req.Amount > 0 && req.Amount != session.Amount {
		s.metrics.RecordAmountMismatch()
		s.metrics.RecordWebhookEvent(req.EventType, outcomeMismatch)
		s.logger.Warn("webhook amount mismatch",
			slog.String("session_id", session.SessionID),
			slog.Int64("webhook_amount", req.Amount),
			slog.Int64("session_amount", session.Amount),
		)
		return nil, model.NewAmountMismatchError(req.Amount, session.Amount)
	}

	switch req.EventType {
	case model.WebhookEventAuthorized:
		if err := s.sessionRepo.UpdateStatus(ctx, session.SessionID, model.PaymentStatusAuthorized); err != nil {
			s.metrics.RecordWebhookEvent(req.EventType, outcomeError)
			return nil, fmt.Errorf("failed to authorize payment session: %w", err)
		}
		s.metrics.RecordWebhookEvent(req.EventType, outcomeAuthorized)
		s.logger.Info("payment session authorized",
			slog.String("session_id", session.SessionID),
		)
		return &WebhookResult{OK: true}, nil

	case model.WebhookEventSuccess:
		// 支払額はウェブフックが正。金額未通知の場合のみセッション金額を採用する。
		priceAtBuy := float64(req.Amount)
		if req.Amount <= 0 {
			priceAtBuy = float64(session.Amount)
		}

		captured, err := s.sessionRepo.Capture(ctx, session.SessionID, priceAtBuy)
		if err != nil {
			s.metrics.RecordWebhookEvent(req.EventType, outcomeError)
			return nil, fmt.Errorf("failed to capture payment session: %w", err)
		}
		if !captured {
			// 再送されたウェブフック。書き込みは発生していない。
			s.metrics.RecordWebhookEvent(req.EventType, outcomeDuplicate)
			s.logger.Info("duplicate capture webhook ignored",
				slog.String("session_id", session.SessionID),
			)
			return &WebhookResult{OK: true}, nil
		}

		s.metrics.RecordCapture()
		s.metrics.RecordWebhookEvent(req.EventType, outcomeCaptured)
		s.logger.Info("payment captured",
			slog.String("session_id", session.SessionID),
			slog.Int64("user_id", session.UserID),
			slog.Int64("song_id", session.SongID),
			slog.Float64("price_at_buy", priceAtBuy),
		)
		return &WebhookResult{OK: true}, nil

	default:
		s.metrics.RecordWebhookEvent(req.EventType, outcomeIgnored)
		s.logger.Info("unknown webhook event ignored",
			slog.String("event_type", req.EventType),
			slog.String("session_id", session.SessionID),
		)
		return &WebhookResult{OK: true, Ignored: true}, nil
	}
}

// SessionStatus は決済セッションのポーリング応答。
type SessionStatus struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	SongID    int64  `json:"songId"`
	UserID    int64  `json:"userId"`
}

// GetSession は決済セッションの現在状態を返す。
// 見つからない場合はPAYMENT_SESSION_NOT_FOUNDを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	session, err := s.sessionRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find payment session: %w", err)
	}
	if session == nil {
		return nil, model.NewPaymentSessionNotFoundError(sessionID)
	}

	return &SessionStatus{
		SessionID: session.SessionID,
		Status:    string(session.Status),
		Amount:    session.Amount,
		SongID:    session.SongID,
		UserID:    session.UserID,
	}, nil
}
