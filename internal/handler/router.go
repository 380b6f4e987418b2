package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/otoichi/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 監視
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 楽曲・ストリーミング
	SongService SongServiceInterface
	MediaGate   MediaGateInterface

	// 決済
	PaymentService PaymentServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → SecurityHeaders → Session(Optional/Required) → Logging → CSRF → RateLimit
//
// 公開ルートは任意セッション（未ログインでも通過）、認証ルートは必須セッション +
// 一般レート制限。POST /api/payments には購入専用のレート制限を重ねる。
// /webhooks/ 配下はサーバー間呼び出しのためCSRF検証の対象外（CSRFConfig.ExemptPaths）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	songHandler := NewSongHandler(deps.SongService, deps.MediaGate)
	paymentHandler := NewPaymentHandler(deps.PaymentService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 公開ルート（任意セッション） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// 認証ルート（OAuthフロー）
		r.Route("/auth", func(r chi.Router) {
			r.Get("/{provider}/login", authHandler.Login)
			r.Get("/{provider}/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		r.Get("/health", handleHealth)
		if deps.MetricsHandler != nil {
			r.Handle("/metrics", deps.MetricsHandler)
		}
		r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 楽曲カタログ（owned判定のため任意セッション）
		r.Get("/api/genres", songHandler.ListGenres)
		r.Get("/api/songs", songHandler.ListSongs)
		r.Route("/api/songs/{id}", func(r chi.Router) {
			r.Get("/", songHandler.GetSong)
			r.Get("/stream", songHandler.StreamSong)
		})

		// 決済セッションのポーリングとウェブフック
		r.Get("/api/payments/{sessionID}", paymentHandler.GetPayment)
		r.Post("/webhooks/payment", paymentHandler.Webhook)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → Logging → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/payments - 決済セッション作成（購入専用レート制限を追加）
		r.With(deps.RateLimiter.PurchaseMiddleware()).Post("/api/payments", paymentHandler.CreatePayment)

		// 楽曲の出品・購入・再生
		r.Post("/api/songs", songHandler.CreateSong)
		r.Post("/api/songs/{id}/buy", songHandler.BuySong)
		r.Post("/api/songs/{id}/listen", songHandler.ListenSong)

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Post("/", userHandler.CreateUser)
		})
	})

	return r
}

// handleHealth はロードバランサー向けのヘルスチェック応答を返す。
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
