package syncx

import (
	"context"
	"sync"
	"time"

	"PChatSync/logger"
	model "PChatSync/module/chat/model"
	"PChatSync/tools/safe"

	errs "PChatSync/tools/errs"

	"github.com/google/uuid"
)

// ===== 同步协调器 =====
//
// 每个活动会话一个协调器实例 + 一个后台工作协程。算法：
//   1. cursor = 0（尚未接受任何消息）
//   2. FetchInitial 顺序进 feed，cursor 推到末条 sentAt
//   3. 打开通道；失败则指数退避重试，每次尝试都上报 connecting
//   4. 开通后立刻 FetchSince(cursor) 补缝（gap-fill），先补完再进稳态；
//      补缝期间到达的实时帧先在投递缓冲里排队，之后同一游标测试合并
//   5. 稳态：sentAt > cursor 追加并推进游标，否则按重复丢弃
//   6. 传输故障：回到第 3 步，feed 与 cursor 原样保留——重连是补缝，不是重置
//   7. 显式拆除：关通道、弃游标；此后一切回调都是 no-op
//
// cursor 与通道会话只有工作协程一个写者。

// Status 对表现层可见的连接状态。
type Status string

const (
	StatusOffline    Status = "offline"
	StatusConnecting Status = "connecting"
	StatusLive       Status = "live"
	StatusError      Status = "error"
)

// Listener 表现层回调。OnMessageAppended 必须快进快出，
// 不得同步回调协调器（要发消息另起协程调 Send）。
type Listener interface {
	OnMessageAppended(msg model.ChatMessage)
	OnStatusChanged(status Status)
	OnFatalError(err error)
}

// Channel 一条活动的实时通道（stomp.Session 即满足）。
type Channel interface {
	Deliveries() <-chan model.ChatMessage
	Errs() <-chan error
	Publish(content string) error
	Close()
}

// Opener 通道工厂；单测注入假通道用。
type Opener interface {
	Open(ctx context.Context, wsURL, token, conversationID string) (Channel, error)
}

// HistoryFetcher 历史拉取（history.Client 即满足）。
type HistoryFetcher interface {
	FetchInitial(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	FetchSince(ctx context.Context, conversationID string, afterMS int64) ([]model.ChatMessage, error)
}

// CredentialSource 凭证只读来源（session.Session 即满足）。
type CredentialSource interface {
	Credential() (string, error)
}

// Conf 协调器配置。
type Conf struct {
	WsURL        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

type Coordinator struct {
	conf     Conf
	creds    CredentialSource
	hist     HistoryFetcher
	opener   Opener
	listener Listener

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64  // 激活代数；旧代工作协程的回调一律丢弃
	cur    Channel // 仅在 Live 期间非 nil，Send 从这里走
	status Status
}

func NewCoordinator(conf Conf, creds CredentialSource, hist HistoryFetcher, opener Opener, listener Listener) *Coordinator {
	safe.MustNotNil(creds, "creds")
	safe.MustNotNil(hist, "hist")
	safe.MustNotNil(opener, "opener")
	safe.MustNotNil(listener, "listener")
	return &Coordinator{
		conf:     conf,
		creds:    creds,
		hist:     hist,
		opener:   opener,
		listener: listener,
		status:   StatusOffline,
	}
}

// Activate 激活一个会话的同步。已有激活时先整体拆除旧的，
// 避免两个写者同时往 feed 里灌。
func (c *Coordinator) Activate(conversationID string) error {
	if _, err := uuid.Parse(conversationID); err != nil {
		return errs.New("conversation id must be UUID-shaped: " + conversationID)
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.cur = nil
	}
	c.gen++
	g := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.status = StatusConnecting
	c.mu.Unlock()

	safe.Go("syncx.worker", func() {
		c.run(ctx, g, conversationID)
	})
	return nil
}

// Send 在实时通道上发一条消息。未 Live 时同步返回 NotConnected，不排队不重试。
func (c *Coordinator) Send(content string) error {
	c.mu.Lock()
	ch := c.cur
	c.mu.Unlock()
	if ch == nil {
		return errs.ErrNotConnected.Wrap()
	}
	return ch.Publish(content)
}

// Deactivate 拆除当前激活；幂等。进行中的拉取被取消，通道关闭，
// 旧工作协程即便晚些才退出，它的回调也已被代数拦下。
func (c *Coordinator) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.cur = nil
	c.status = StatusOffline
}

// Status 当前状态（表现层轮询/测试用；事件流走 Listener）。
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ===== 工作协程 =====

func (c *Coordinator) run(ctx context.Context, g uint64, convID string) {
	var cursor int64 // 0 = 还没接受过任何消息

	bo := Backoff{Min: c.conf.ReconnectMin, Max: c.conf.ReconnectMax}

	// --- 初始同步：历史全量 ---
	for {
		c.emitStatus(g, StatusConnecting)
		batch, err := c.hist.FetchInitial(ctx, convID)
		if err == nil {
			cursor = c.appendBatch(ctx, g, batch, cursor)
			break
		}
		if ctx.Err() != nil {
			return
		}
		if !errs.IsRetryable(err) {
			c.fatal(g, err)
			return
		}
		logger.Warnf("[syncx] initial fetch conv=%s retrying: %v", convID, err)
		if !c.sleep(ctx, bo.Next()) {
			return
		}
	}
	bo.Reset()

	// --- 连接循环：开通道 -> gap-fill -> 稳态 ---
	for {
		c.emitStatus(g, StatusConnecting)

		token, err := c.creds.Credential()
		if err != nil {
			c.fatal(g, err)
			return
		}

		ch, err := c.opener.Open(ctx, c.conf.WsURL, token, convID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errs.IsRetryable(err) {
				c.fatal(g, err)
				return
			}
			logger.Warnf("[syncx] open conv=%s retrying: %v", convID, err)
			if !c.sleep(ctx, bo.Next()) {
				return
			}
			continue
		}

		// gap-fill：订阅已生效，先把断线窗口里落下的补齐。
		// 这段时间实时投递在通道缓冲里排队，稳态循环会用同一游标测试消化掉。
		gap, err := c.hist.FetchSince(ctx, convID, cursor)
		if err != nil {
			ch.Close()
			if ctx.Err() != nil {
				return
			}
			if !errs.IsRetryable(err) {
				c.fatal(g, err)
				return
			}
			logger.Warnf("[syncx] gap-fill conv=%s retrying: %v", convID, err)
			if !c.sleep(ctx, bo.Next()) {
				return
			}
			continue
		}
		cursor = c.appendBatch(ctx, g, gap, cursor)

		c.setChannel(g, ch)
		bo.Reset()
		c.emitStatus(g, StatusLive)
		logger.Infof("[syncx] live conv=%s cursor=%d", convID, cursor)

		// --- 稳态 ---
		steady := true
		for steady {
			select {
			case m := <-ch.Deliveries():
				if m.SentAtMS > cursor {
					cursor = m.SentAtMS
					c.emitMessage(g, m)
				}
				// <= cursor：gap-fill 或重复投递已经覆盖，丢弃即幂等

			case err := <-ch.Errs():
				c.clearChannel(g)
				ch.Close()
				c.emitStatus(g, StatusError)
				logger.Warnf("[syncx] channel down conv=%s cursor=%d: %v", convID, cursor, err)
				steady = false // 回连接循环，feed 和 cursor 不动

			case <-ctx.Done():
				c.clearChannel(g)
				ch.Close()
				return
			}
		}
	}
}

// appendBatch 把一批历史结果并进 feed。阈值取批次开始时的游标：
// 批内相同 sentAt 的不同消息按到达顺序全部保留，不会互相吞掉。
func (c *Coordinator) appendBatch(ctx context.Context, g uint64, batch []model.ChatMessage, cursor int64) int64 {
	threshold := cursor
	for _, m := range batch {
		if ctx.Err() != nil {
			return cursor
		}
		if m.SentAtMS <= threshold {
			continue
		}
		if m.SentAtMS > cursor {
			cursor = m.SentAtMS
		}
		c.emitMessage(g, m)
	}
	return cursor
}

// ===== 回调围栏：旧代一律静默 =====

func (c *Coordinator) alive(g uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == g
}

func (c *Coordinator) emitMessage(g uint64, m model.ChatMessage) {
	if !c.alive(g) {
		return
	}
	c.listener.OnMessageAppended(m)
}

func (c *Coordinator) emitStatus(g uint64, st Status) {
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return
	}
	c.status = st
	c.mu.Unlock()
	c.listener.OnStatusChanged(st)
}

func (c *Coordinator) fatal(g uint64, err error) {
	c.mu.Lock()
	if c.gen != g {
		c.mu.Unlock()
		return
	}
	c.status = StatusError
	c.cur = nil
	c.mu.Unlock()
	c.listener.OnStatusChanged(StatusError)
	c.listener.OnFatalError(err)
}

func (c *Coordinator) setChannel(g uint64, ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != g {
		return
	}
	c.cur = ch
}

func (c *Coordinator) clearChannel(g uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == g {
		c.cur = nil
	}
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
