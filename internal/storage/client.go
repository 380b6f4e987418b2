// Package storage はオブジェクトストレージ連携機能を提供する。
// ストレージAPIの署名付きURL発行を含む。音源ファイル本体は
// ストレージ側に保存され、本サービスはパスのみを保持する。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client はストレージAPIのクライアント。
// 署名付きURLエンドポイントを使用して期限付きのダウンロードURLを発行する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // 例: https://xxxx.supabase.co/storage/v1
	serviceKey string
}

// NewClient はClient の新しいインスタンスを生成する。
// baseURLの末尾スラッシュは除去して保持する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, serviceKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
	}
}

// signRequest は署名付きURL発行エンドポイントのリクエストボディ。
type signRequest struct {
	ExpiresIn int `json:"expiresIn"` // 有効期間（秒）
}

// signResponse は署名付きURL発行エンドポイントのレスポンス。
// signedURLはストレージベースからの相対パスで返る。
type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignURL はバケット内のオブジェクトに対する署名付きURLを発行する。
// 返すURLは絶対URLで、ttl経過後は無効になる。
// パス先頭のスラッシュは正規化される。
func (c *Client) SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if path == "" {
		return "", fmt.Errorf("オブジェクトパスが空です")
	}
	path = strings.TrimLeft(path, "/")

	reqBody, err := json.Marshal(signRequest{ExpiresIn: int(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("署名リクエストのエンコードに失敗しました: %w", err)
	}

	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", c.baseURL, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ストレージAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("bucket", bucket),
		)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ストレージAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("bucket", bucket),
		)
		return "", fmt.Errorf("ストレージAPIがステータス %d を返しました", resp.StatusCode)
	}

	var result signResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("ストレージAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if result.SignedURL == "" {
		return "", fmt.Errorf("ストレージAPIが空のsignedURLを返しました")
	}

	// signedURLは "/object/sign/..." 形式の相対パスで返るため絶対URLに組み立てる
	signed := result.SignedURL
	if !strings.HasPrefix(signed, "http://") && !strings.HasPrefix(signed, "https://") {
		signed = c.baseURL + "/" + strings.TrimLeft(signed, "/")
	}

	return signed, nil
}
