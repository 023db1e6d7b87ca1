package model

import (
	"strings"
	"time"

	decode "PChatSync/tools/decode"
)

// ===== 消息模型 =====

// ChatMessage 一条服务端确认的会话消息。创建后不再修改；
// 本地乐观回显不进入该模型（表现层自理）。
type ChatMessage struct {
	ID             *int64 `json:"id"`             // 服务端持久化后分配；本地未确认的发送为 nil
	ConversationID string `json:"conversationId"` // 会话ID（UUID 形态，客户端不解释内部结构）
	Sender         string `json:"sender"`         // 服务端权威填写
	Content        string `json:"content"`
	SentAtMS       int64  `json:"sentAt"` // 服务端权威时间，epoch ms（线上为 ISO8601 字符串，解码时转换）
}

// Mine 当前用户是否为发送者（大小写不敏感，对齐服务端账号规则）。
func (m *ChatMessage) Mine(currentUser string) bool {
	return currentUser != "" && m.Sender != "" && strings.EqualFold(m.Sender, currentUser)
}

// SentAt 转回 time.Time（展示用）。
func (m *ChatMessage) SentAt() time.Time {
	return time.UnixMilli(m.SentAtMS)
}

// DecodeMessage 从 JSON 原文解析一条消息（STOMP MESSAGE 帧体 / REST 数组元素通用）。
func DecodeMessage(raw []byte) (*ChatMessage, error) {
	return decode.DecodeJSON[ChatMessage](raw)
}

// DecodeMessageMap 从已反序列化的 map 解析。
func DecodeMessageMap(m map[string]any) (*ChatMessage, error) {
	return decode.DecodeMap[ChatMessage](m)
}
