package session

import (
	"context"
	"fmt"
	"time"

	"PChatSync/logger"
	errs "PChatSync/tools/errs"

	"github.com/go-resty/resty/v2"
)

// AuthClient 认证协作方的瘦客户端（登录/注册）。
// 同步引擎本身不会调用它；demo 入口用它换取凭证后写入 Session。
type AuthClient struct {
	http *resty.Client
	sess *Session
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResp struct {
	Token string `json:"token"`
}

type registerReq struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

func NewAuthClient(baseURL string, timeout time.Duration, sess *Session) *AuthClient {
	return &AuthClient{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		sess: sess,
	}
}

// Login 登录成功后把 token 与身份写入 Session，并返回 token。
func (c *AuthClient) Login(ctx context.Context, username, password string) (string, error) {
	var out loginResp
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(loginReq{Username: username, Password: password}).
		SetResult(&out).
		Post("/api/auth/login")
	if err != nil {
		return "", errs.ErrUnavailable.WrapMsg(err.Error())
	}
	if resp.StatusCode() != 200 {
		return "", errs.ErrUnauthorized.WrapMsg(
			fmt.Sprintf("login status=%d body=%s", resp.StatusCode(), resp.String()))
	}
	if out.Token == "" {
		return "", errs.New("no 'token' in login response: " + resp.String())
	}

	c.sess.SetCredential(out.Token)
	c.sess.SetIdentity(username)
	logger.Infof("[auth] login ok user=%s", username)
	return out.Token, nil
}

// Register 创建账号；服务端 200/201 都算成功。
func (c *AuthClient) Register(ctx context.Context, username, displayName, password string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(registerReq{Username: username, DisplayName: displayName, Password: password}).
		Post("/api/auth/register")
	if err != nil {
		return errs.ErrUnavailable.WrapMsg(err.Error())
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 201 {
		return errs.New(fmt.Sprintf("register failed: %d %s", resp.StatusCode(), resp.String()))
	}
	return nil
}
