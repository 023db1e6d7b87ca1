package stomp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"PChatSync/logger"
	model "PChatSync/module/chat/model"
	"PChatSync/tools/safe"

	errs "PChatSync/tools/errs"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ===== 通道传输层 =====
//
// 状态机：Disconnected -> Connecting -> Subscribing -> Live -> Disconnected。
// Open 在订阅确认（RECEIPT）之前绝不报就绪——订阅完成前 broker 投出的消息
// 在服务端语义上就是丢的，由协调器的 gap-fill 兜底。
// 本层不做重试；重试策略在 service/syncx。

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateLive
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateLive:
		return "live"
	default:
		return "disconnected"
	}
}

// 服务端约定的目的地（原样对齐 broker 配置）
const (
	topicPrefix = "/topic/chat." // 订阅：/topic/chat.{conversationId}
	sendDest    = "/app/send"    // 发布：服务端补 sender 和 sentAt 后经订阅回流
)

// Conf 传输层配置。
type Conf struct {
	DialTimeout    time.Duration // 拨号+CONNECT+SUBSCRIBE 整体预算
	DeliveryBuffer int           // 投递缓冲；gap-fill 期间的实时帧先在这里排队
}

func (c *Conf) norm() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.DeliveryBuffer <= 0 {
		c.DeliveryBuffer = 256
	}
}

// Dialer 负责建立 ChannelSession。
type Dialer struct {
	Conf Conf
}

// Session 一条活动的 STOMP 会话。每次重连都整体换新，从不复用。
type Session struct {
	conn   *websocket.Conn
	convID string
	subID  string

	state atomic.Int32

	deliver chan model.ChatMessage
	errCh   chan error
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	failOnce  sync.Once

	// SUBSCRIBE 与 RECEIPT 之间先到的消息，Live 前暂存
	pending []model.ChatMessage
}

// Open 建立连接：握手带 bearer 凭证，CONNECTED 后订阅会话 topic，
// 等到订阅回执才返回。任何一步失败都关闭底层连接并报错。
func (d *Dialer) Open(ctx context.Context, wsURL, token, conversationID string) (*Session, error) {
	conf := d.Conf
	conf.norm()

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)

	wd := websocket.Dialer{
		HandshakeTimeout: conf.DialTimeout,
		Subprotocols:     []string{"v12.stomp", "v11.stomp"},
	}
	conn, resp, err := wd.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errs.ErrUnauthorized.WrapMsg("ws handshake status=401")
		}
		return nil, errs.ErrUnavailable.WrapMsg("ws dial: " + err.Error())
	}

	s := &Session{
		conn:    conn,
		convID:  conversationID,
		subID:   "sub-" + uuid.NewString(),
		deliver: make(chan model.ChatMessage, conf.DeliveryBuffer),
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	// 握手阶段统一设读超时，Live 后清掉
	deadline := time.Now().Add(conf.DialTimeout)
	_ = conn.SetReadDeadline(deadline)

	if err := s.stompConnect(token); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.state.Store(int32(StateSubscribing))
	if err := s.stompSubscribe(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Time{})
	s.state.Store(int32(StateLive))

	// 订阅确认前暂存的帧先入投递队列，保持传输序
	for _, m := range s.pending {
		s.deliver <- m
	}
	s.pending = nil

	safe.Go("stomp.readPump", s.readPump)
	logger.Infof("[stomp] live conv=%s sub=%s", conversationID, s.subID)
	return s, nil
}

// stompConnect 发送 CONNECT 并等待 CONNECTED。
func (s *Session) stompConnect(token string) error {
	connect := NewFrame(CmdConnect,
		Header{HdrAcceptVersion, "1.2,1.1"},
		Header{HdrHost, "/"},
		Header{HdrHeartBeat, "0,0"},
		Header{HdrAuthorization, "Bearer " + token},
	)
	if err := s.write(connect); err != nil {
		return errs.ErrUnavailable.WrapMsg("write CONNECT: " + err.Error())
	}

	for {
		f, err := s.readFrame()
		if err != nil {
			return errs.ErrUnavailable.WrapMsg("await CONNECTED: " + err.Error())
		}
		switch f.Command {
		case CmdConnected:
			return nil
		case CmdError:
			return brokerError(f)
		default:
			// 其余帧在握手阶段不该出现，忽略
		}
	}
}

// stompSubscribe 带 receipt 订阅会话 topic，等待 RECEIPT 确认。
func (s *Session) stompSubscribe() error {
	receiptID := "rcpt-" + uuid.NewString()
	sub := NewFrame(CmdSubscribe,
		Header{HdrID, s.subID},
		Header{HdrDestination, topicPrefix + s.convID},
		Header{HdrAck, "auto"},
		Header{HdrReceipt, receiptID},
	)
	if err := s.write(sub); err != nil {
		return errs.ErrUnavailable.WrapMsg("write SUBSCRIBE: " + err.Error())
	}

	for {
		f, err := s.readFrame()
		if err != nil {
			return errs.ErrUnavailable.WrapMsg("await RECEIPT: " + err.Error())
		}
		switch f.Command {
		case CmdReceipt:
			if f.Get(HdrReceiptID) == receiptID {
				return nil
			}
		case CmdMessage:
			// broker 已经开始投递，但订阅还没确认——暂存，Live 后投出
			if m := s.decodeMessage(f); m != nil {
				s.pending = append(s.pending, *m)
			}
		case CmdError:
			return brokerError(f)
		}
	}
}

// Publish 在已 Live 的会话上发出一条消息。未 Live 时同步报 NotConnected，
// 由调用方决定提示或重试——引擎不做离线发件箱。
func (s *Session) Publish(content string) error {
	if s.State() != StateLive {
		return errs.ErrNotConnected.Wrap()
	}
	body, err := json.Marshal(map[string]string{
		"conversationId": s.convID,
		"content":        content,
	})
	if err != nil {
		return errs.WrapMsg(err, "marshal send body")
	}
	f := NewFrame(CmdSend,
		Header{HdrDestination, sendDest},
		Header{HdrContentType, "application/json;charset=UTF-8"},
	)
	f.Body = body
	if err := s.write(f); err != nil {
		return errs.ErrNotConnected.WrapMsg("write SEND: " + err.Error())
	}
	return nil
}

// Deliveries 实时消息投递通道，按传输顺序。
func (s *Session) Deliveries() <-chan model.ChatMessage { return s.deliver }

// Errs Live 之后的异步传输故障（至多一条）。
func (s *Session) Errs() <-chan error { return s.errCh }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) ConversationID() string { return s.convID }

// Close 显式拆除：此后投递/故障通道静默，绝不再有回调。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateDisconnected))
		close(s.done)

		// 尽力而为地发 DISCONNECT，失败无所谓
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = s.conn.WriteMessage(websocket.TextMessage, NewFrame(CmdDisconnect).Marshal())
		s.writeMu.Unlock()

		_ = s.conn.Close()
	})
}

// ===== 内部 =====

// readPump 唯一的读协程：解帧、解码、投递。出错即退出，由 fail 上报一次。
func (s *Session) readPump() {
	for {
		f, err := s.readFrame()
		if err != nil {
			s.fail(errs.ErrUnavailable.WrapMsg("read: " + err.Error()))
			return
		}
		switch f.Command {
		case CmdMessage:
			m := s.decodeMessage(f)
			if m == nil {
				continue
			}
			select {
			case s.deliver <- *m:
			case <-s.done:
				return
			}
		case CmdError:
			s.fail(brokerError(f))
			return
		default:
			// RECEIPT 等控制帧在 Live 阶段没有消费者，忽略
		}
	}
}

// fail 把 Live 后的异步故障上报一次；拆除之后是 no-op。
func (s *Session) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.failOnce.Do(func() {
		s.state.Store(int32(StateDisconnected))
		_ = s.conn.Close()
		select {
		case s.errCh <- err:
		default:
		}
	})
}

func (s *Session) decodeMessage(f *Frame) *model.ChatMessage {
	m, err := model.DecodeMessage(f.Body)
	if err != nil {
		logger.Warnf("[stomp] drop undecodable MESSAGE conv=%s err=%v", s.convID, err)
		return nil
	}
	return m
}

// readFrame 读下一个完整帧，跳过心跳。
func (s *Session) readFrame() (*Frame, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		f, err := Parse(data)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue // 心跳
		}
		return f, nil
	}
}

func (s *Session) write(f *Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, f.Marshal())
}

// brokerError 把 ERROR 帧归类：凭证问题致命，其余按瞬时故障处理。
func brokerError(f *Frame) error {
	msg := f.Get(HdrMessage)
	detail := fmt.Sprintf("broker ERROR message=%q body=%q", msg, string(f.Body))
	lower := strings.ToLower(msg + " " + string(f.Body))
	if strings.Contains(lower, "unauthorized") || strings.Contains(lower, "401") ||
		strings.Contains(lower, "access denied") || strings.Contains(lower, "authentication") {
		return errs.ErrUnauthorized.WrapMsg(detail)
	}
	return errs.ErrUnavailable.WrapMsg(detail)
}
