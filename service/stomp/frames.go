package stomp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ===== STOMP 1.2 帧编解码 =====
//
// 帧结构：COMMAND\n 头部行*\n \n 帧体 NUL。
// 心跳是裸 LF（EOL），不构成帧。
// 头部转义（CONNECT/CONNECTED 除外）：\\ \n \r \c 分别对应 反斜杠/换行/回车/冒号。

const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

// 常用头
const (
	HdrAcceptVersion = "accept-version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrAuthorization = "Authorization"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrAck           = "ack"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrSubscription  = "subscription"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrMessage       = "message"
)

type Header struct {
	Key   string
	Value string
}

// Frame 一个完整的 STOMP 帧。Headers 保序（协议规定重复键以首个为准）。
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

func NewFrame(command string, headers ...Header) *Frame {
	return &Frame{Command: command, Headers: headers}
}

func (f *Frame) Append(key, value string) *Frame {
	f.Headers = append(f.Headers, Header{Key: key, Value: value})
	return f
}

// Get 取首个同名头；不存在返回空串。
func (f *Frame) Get(key string) string {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// escaped CONNECT/CONNECTED 帧按 1.2 规范不做头部转义（兼容 1.0）。
func (f *Frame) escaped() bool {
	return f.Command != CmdConnect && f.Command != CmdConnected
}

// Marshal 序列化；有帧体时自动补 content-length。
func (f *Frame) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	esc := f.escaped()
	for _, h := range f.Headers {
		if esc {
			b.WriteString(escapeHeader(h.Key))
			b.WriteByte(':')
			b.WriteString(escapeHeader(h.Value))
		} else {
			b.WriteString(h.Key)
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 && f.Get(HdrContentLength) == "" {
		b.WriteString(HdrContentLength)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// Parse 解析一个帧。心跳（仅 EOL）返回 (nil, nil)。
func Parse(raw []byte) (*Frame, error) {
	// 剥掉前导心跳 EOL
	for len(raw) > 0 && (raw[0] == '\n' || raw[0] == '\r') {
		raw = raw[1:]
	}
	if len(raw) == 0 {
		return nil, nil
	}

	head, body, ok := bytes.Cut(raw, []byte("\n\n"))
	if !ok {
		// 兼容 \r\n 行尾
		head, body, ok = bytes.Cut(raw, []byte("\r\n\r\n"))
		if !ok {
			return nil, fmt.Errorf("stomp: frame missing header terminator")
		}
	}

	lines := strings.Split(string(head), "\n")
	f := &Frame{Command: strings.TrimRight(lines[0], "\r")}
	if f.Command == "" {
		return nil, fmt.Errorf("stomp: empty command")
	}

	esc := f.escaped()
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		k, v, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("stomp: malformed header line %q", line)
		}
		if esc {
			var err error
			if k, err = unescapeHeader(k); err != nil {
				return nil, err
			}
			if v, err = unescapeHeader(v); err != nil {
				return nil, err
			}
		}
		f.Headers = append(f.Headers, Header{Key: k, Value: v})
	}

	// 帧体：优先按 content-length 截断，否则到 NUL 为止
	if cl := f.Get(HdrContentLength); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(body) {
			return nil, fmt.Errorf("stomp: bad content-length %q", cl)
		}
		f.Body = body[:n]
	} else {
		if i := bytes.IndexByte(body, 0); i >= 0 {
			f.Body = body[:i]
		} else {
			f.Body = body
		}
	}
	return f, nil
}

func escapeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case ':':
			b.WriteString(`\c`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeHeader(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("stomp: dangling escape in header %q", s)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'c':
			b.WriteByte(':')
		default:
			// 1.2 规范：未知转义必须按致命错误处理
			return "", fmt.Errorf("stomp: invalid escape \\%c in header %q", s[i], s)
		}
	}
	return b.String(), nil
}
