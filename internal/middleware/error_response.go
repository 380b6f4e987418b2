package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/otoichi/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// code はフロントエンドが分岐に使う機械可読な識別子で、
// category と action はユーザー向けの原因カテゴリと対処方法を表す。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIErrorを統一フォーマットでレスポンスに書き込む。
// ミドルウェアとハンドラの双方が同じ形式を返すための共通関数。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は内部エラーの定型レスポンスを書き込む。
// 内部の詳細はログ側にのみ残し、クライアントには一般的なメッセージだけを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
