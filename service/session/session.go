package session

import (
	"sync"

	errs "PChatSync/tools/errs"

	"github.com/golang-jwt/jwt/v5"
)

// ===== 会话上下文 =====
//
// 持有当前凭证与当前用户身份，只读提供给引擎各组件；
// 凭证的签发/刷新归外部认证方，这里不做。

type Session struct {
	mu     sync.RWMutex
	token  string
	userID string
}

func New() *Session {
	return &Session{}
}

// SetCredential 写入 bearer token，并从 claims 里解出当前用户身份。
// 客户端没有签名密钥，只做不验签的 claims 读取；解不出身份不算错误
// （引擎照常工作，仅"我方消息"标记退化）。
func (s *Session) SetCredential(token string) {
	identity := identityFromToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.userID = identity
}

// SetIdentity 显式覆盖身份（登录接口知道用户名时直接写入，比 claims 更可靠）。
func (s *Session) SetIdentity(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// Credential 读取当前凭证；无凭证立即报 Unauthenticated，调用方不得发网络请求。
func (s *Session) Credential() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", errs.ErrUnauthenticated.Wrap()
	}
	return s.token, nil
}

// CurrentUser 当前用户身份（可能为空串）。
func (s *Session) CurrentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// identityFromToken 不验签解析 JWT，按 sub -> username 的顺序取身份。
func identityFromToken(token string) string {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if u, ok := claims["username"].(string); ok {
		return u
	}
	return ""
}
