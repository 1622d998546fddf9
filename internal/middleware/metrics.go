package middleware

import "net/http"

// HTTPStatusRecorder はレスポンスのステータスコードを受け取るインターフェース。
// メトリクスコレクターが実装する。
type HTTPStatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// NewMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録する
// ミドルウェアを返す。recorderがnilの場合は何もしない。
func NewMetricsMiddleware(recorder HTTPStatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sr, r)
			recorder.RecordHTTPStatus(sr.statusCode)
		})
	}
}
