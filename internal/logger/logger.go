// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// wがnilの場合はos.Stdoutに出力する。
func Setup(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定し、
// 生成したロガーを返す。ミドルウェアやハンドラーのパッケージレベルの
// slog呼び出しもこのロガーを経由する。
func SetupDefault(w io.Writer) *slog.Logger {
	logger := Setup(w)
	slog.SetDefault(logger)
	return logger
}
