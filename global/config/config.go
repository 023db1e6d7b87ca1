package config

import (
	"os"
	"strconv"
	"time"
)

// 环境变量：
// CHAT_API_BASE       (默认 https://chat-server-wot9.onrender.com)
// CHAT_WS_URL         (默认 wss://chat-server-wot9.onrender.com/ws-native)
// CHAT_DIAL_TIMEOUT_MS      (默认 10000)
// CHAT_HTTP_TIMEOUT_MS      (默认 30000)
// CHAT_RECONNECT_MIN_MS     (默认 500)
// CHAT_RECONNECT_MAX_MS     (默认 30000)
// CHAT_DELIVERY_BUFFER      (默认 256)

// AppConfig 客户端全局配置。
type AppConfig struct {
	ApiBase string // REST 基地址（历史拉取 / 登录注册）
	WsURL   string // STOMP over WebSocket 入口

	DialTimeout time.Duration // 握手+订阅整体超时
	HTTPTimeout time.Duration // 单次 REST 调用超时

	ReconnectMin time.Duration // 重连退避起始值
	ReconnectMax time.Duration // 重连退避上限

	DeliveryBuffer int // 读泵 -> 协调器 的投递缓冲（吸收 gap-fill 期间的实时消息）
}

var Global = AppConfig{
	ApiBase:        "https://chat-server-wot9.onrender.com",
	WsURL:          "wss://chat-server-wot9.onrender.com/ws-native",
	DialTimeout:    10 * time.Second,
	HTTPTimeout:    30 * time.Second,
	ReconnectMin:   500 * time.Millisecond,
	ReconnectMax:   30 * time.Second,
	DeliveryBuffer: 256,
}

// ConfigAll 读取环境变量覆盖默认值，main 启动时调用一次。
func ConfigAll() {
	Global.ApiBase = GetEnv("CHAT_API_BASE", Global.ApiBase)
	Global.WsURL = GetEnv("CHAT_WS_URL", Global.WsURL)
	Global.DialTimeout = getEnvMS("CHAT_DIAL_TIMEOUT_MS", Global.DialTimeout)
	Global.HTTPTimeout = getEnvMS("CHAT_HTTP_TIMEOUT_MS", Global.HTTPTimeout)
	Global.ReconnectMin = getEnvMS("CHAT_RECONNECT_MIN_MS", Global.ReconnectMin)
	Global.ReconnectMax = getEnvMS("CHAT_RECONNECT_MAX_MS", Global.ReconnectMax)
	Global.DeliveryBuffer = GetEnvInt("CHAT_DELIVERY_BUFFER", Global.DeliveryBuffer)
}

func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvMS(key string, def time.Duration) time.Duration {
	ms := GetEnvInt(key, int(def/time.Millisecond))
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
