package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"PChatSync/logger"
	model "PChatSync/module/chat/model"
	session "PChatSync/service/session"
	errs "PChatSync/tools/errs"

	"github.com/go-resty/resty/v2"
)

// ===== 历史拉取 =====
//
// 按 sentAt 游标分页拉取会话历史。本组件保证结果按 sentAt 升序、调用幂等，
// 但不做去重——去重是协调器的游标测试的职责。
// 错误映射：401 -> Unauthorized（不在本层重试）；404 -> NotFound；
// 其余非 200 与网络错误 -> Unavailable（由上层退避重试）。

type Client struct {
	http *resty.Client
	sess *session.Session
}

func NewClient(baseURL string, timeout time.Duration, sess *session.Session) *Client {
	return &Client{
		http: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		sess: sess,
	}
}

// FetchInitial 拉取全量（或服务端截断的）历史，最旧在前。
func (c *Client) FetchInitial(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	return c.fetch(ctx, conversationID, nil)
}

// FetchSince 只拉取 sentAt 严格大于 afterMS 的消息，最旧在前。
// 手动刷新和重连后的 gap-fill 都走这里。
func (c *Client) FetchSince(ctx context.Context, conversationID string, afterMS int64) ([]model.ChatMessage, error) {
	return c.fetch(ctx, conversationID, &afterMS)
}

func (c *Client) fetch(ctx context.Context, conversationID string, afterMS *int64) ([]model.ChatMessage, error) {
	token, err := c.sess.Credential()
	if err != nil {
		return nil, err // Unauthenticated：没凭证绝不发请求
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParam("id", conversationID)
	if afterMS != nil {
		req.SetQueryParam("afterEpochMs", strconv.FormatInt(*afterMS, 10))
	}

	resp, err := req.Get("/api/conversations/{id}/messages")
	if err != nil {
		return nil, errs.ErrUnavailable.WrapMsg(err.Error())
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		// fallthrough 到解析
	case http.StatusUnauthorized:
		return nil, errs.ErrUnauthorized.WrapMsg("history status=401 body=" + resp.String())
	case http.StatusNotFound:
		return nil, errs.ErrNotFound.WrapMsg("conversation=" + conversationID)
	default:
		return nil, errs.ErrUnavailable.WrapMsg(
			fmt.Sprintf("history status=%d body=%s", resp.StatusCode(), resp.String()))
	}

	msgs, err := decodeBatch(resp.Body())
	if err != nil {
		return nil, err
	}
	logger.Debugf("[history] conv=%s after=%v got=%d", conversationID, afterMS, len(msgs))
	return msgs, nil
}

// decodeBatch 响应体是消息对象数组；逐条走弱类型解码（sentAt ISO 字符串 -> epoch ms）。
func decodeBatch(body []byte) ([]model.ChatMessage, error) {
	var arr []map[string]any
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, errs.ErrUnavailable.WrapMsg("history body not array: " + err.Error())
	}
	out := make([]model.ChatMessage, 0, len(arr))
	for i, m := range arr {
		msg, err := model.DecodeMessageMap(m)
		if err != nil {
			return nil, errs.ErrUnavailable.WrapMsg(
				fmt.Sprintf("history entry %d decode: %v", i, err))
		}
		out = append(out, *msg)
	}
	return out, nil
}
