package errs

// ===== 错误码 =====
//
// 1xxx: 凭证/权限；2xxx: 网络/通道；3xxx: 资源。
// 同步引擎的重试策略只看 code：
//   - ErrUnavailable / 通道断开  -> 退避重连
//   - 其余                       -> 致命，停止会话并上报
const (
	CodeUnauthenticated = 1001 // 本地无凭证，未发起网络调用
	CodeUnauthorized    = 1002 // 服务端拒绝凭证（401）
	CodeUnavailable     = 2001 // 网络/代理/5xx 等瞬时故障
	CodeNotConnected    = 2002 // 通道未处于 Live，发送被拒
	CodeNotFound        = 3001 // 会话不存在（404）
)

var (
	ErrUnauthenticated = NewCodeError(CodeUnauthenticated, "no credential present")
	ErrUnauthorized    = NewCodeError(CodeUnauthorized, "credential rejected")
	ErrUnavailable     = NewCodeError(CodeUnavailable, "service unavailable")
	ErrNotConnected    = NewCodeError(CodeNotConnected, "channel not connected")
	ErrNotFound        = NewCodeError(CodeNotFound, "conversation not found")
)

// IsRetryable 判断是否属于可退避重试的瞬时错误。
func IsRetryable(err error) bool {
	return Code(err) == CodeUnavailable
}
