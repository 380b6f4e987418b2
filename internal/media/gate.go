// Package media は音源ストリーミングのアクセス制御を提供する。
//
// プレビュー音源は誰でも再生できるが、フル音源は購入者・出品者・管理者のみが
// 再生できる。音源ファイル自体は外部ストレージにあり、本パッケージは
// アクセス判定に通ったリクエストにのみ期限付きの署名付きURLを発行する。
package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/otoichi/internal/model"
	"github.com/hitoshi/otoichi/internal/repository"
)

// 音源の種別。
const (
	KindPreview = "preview"
	KindFull    = "full"
)

// URLSigner は署名付きURL発行のインターフェース。storage.Clientが実装する。
type URLSigner interface {
	SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// Metrics はメディアゲートが記録するメトリクスの narrow interface。
type Metrics interface {
	RecordSignedURLIssued(variant string)
}

// GateConfig はメディアゲートの設定。
type GateConfig struct {
	Bucket       string        // 音源バケット名
	SignedURLTTL time.Duration // 署名付きURLの有効期間
}

// Gate は音源アクセスの判定と署名付きURL発行を行う。
type Gate struct {
	songRepo     repository.SongRepository
	purchaseRepo repository.PurchaseRepository
	signer       URLSigner
	metrics      Metrics
	config       GateConfig
	logger       *slog.Logger
}

// NewGate はGateを生成する。
func NewGate(
	songRepo repository.SongRepository,
	purchaseRepo repository.PurchaseRepository,
	signer URLSigner,
	metrics Metrics,
	config GateConfig,
	logger *slog.Logger,
) *Gate {
	return &Gate{
		songRepo:     songRepo,
		purchaseRepo: purchaseRepo,
		signer:       signer,
		metrics:      metrics,
		config:       config,
		logger:       logger,
	}
}

// ResolveStreamURL は指定楽曲・種別の署名付きストリーミングURLを返す。
// userは未ログインの場合nil。
//
// 判定順序:
//  1. kindがpreview/full以外 → INVALID_REQUEST
//  2. 楽曲が存在しない → SONG_NOT_FOUND
//  3. full かつ 未ログイン → UNAUTHORIZED
//  4. full かつ 購入者でも出品者でも管理者でもない → FORBIDDEN
//  5. 対象パスが未設定 → AUDIO_NOT_AVAILABLE
//  6. 署名失敗 → SIGNED_URL_FAILED
func (g *Gate) ResolveStreamURL(ctx context.Context, user *model.User, songID int64, kind string) (string, error) {
	if kind != KindPreview && kind != KindFull {
		return "", model.NewInvalidRequestError(fmt.Sprintf("kindはpreviewまたはfullを指定してください: %q", kind))
	}

	song, err := g.songRepo.FindByID(ctx, songID)
	if err != nil {
		return "", fmt.Errorf("failed to find song: %w", err)
	}
	if song == nil {
		return "", model.NewSongNotFoundError(songID)
	}

	path := song.PreviewPath
	if kind == KindFull {
		if user == nil {
			return "", model.NewUnauthorizedError()
		}
		if err := g.checkFullAccess(ctx, user, song); err != nil {
			return "", err
		}
		path = song.FullPath
	}

	if path == "" {
		return "", model.NewAudioNotAvailableError(kind)
	}

	url, err := g.signer.SignURL(ctx, g.config.Bucket, path, g.config.SignedURLTTL)
	if err != nil {
		g.logger.Error("failed to sign stream url",
			slog.Int64("song_id", songID),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return "", model.NewSignedURLFailedError()
	}

	g.metrics.RecordSignedURLIssued(kind)
	return url, nil
}

// checkFullAccess はフル音源の再生権を判定する。
// 出品者本人、管理者、購入者のいずれかであれば許可する。
func (g *Gate) checkFullAccess(ctx context.Context, user *model.User, song *model.Song) error {
	if user.ID == song.SellerID || user.IsAdmin() {
		return nil
	}

	owned, err := g.purchaseRepo.Exists(ctx, user.ID, song.ID)
	if err != nil {
		return fmt.Errorf("failed to check purchase: %w", err)
	}
	if !owned {
		return model.NewForbiddenError()
	}
	return nil
}
