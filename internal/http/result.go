package httpapi

// Result 统一响应包装
// - code: 2000 成功
// - type: 'success' | 'error' | 'warning'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
	// ResultNotAuthenticated 会话不存在或过期，配合 HTTP 401
	ResultNotAuthenticated = 60401
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Partial 部分数据可用（某一路查询失败）
func Partial[T any](result T, message string) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "warning", Message: message, Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

func NotAuthenticated() Result[any] {
	return Result[any]{Code: ResultNotAuthenticated, Type: "error", Message: "not authenticated", Result: nil}
}
