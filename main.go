package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PChatSync/global/config"
	"PChatSync/logger"
	model "PChatSync/module/chat/model"
	"PChatSync/service/history"
	"PChatSync/service/session"
	"PChatSync/service/stomp"
	"PChatSync/service/syncx"
	errs "PChatSync/tools/errs"
)

// 终端聊天客户端：登录（或直接用 CHAT_TOKEN）-> 激活会话 -> stdin 逐行发送。
// 同步引擎负责历史回放、实时订阅、断线补缝；这里只做打印。

type printListener struct {
	sess *session.Session
}

func (p *printListener) OnMessageAppended(m model.ChatMessage) {
	marker := "  "
	if m.Mine(p.sess.CurrentUser()) {
		marker = "->"
	}
	fmt.Printf("%s [%s] %s: %s\n",
		marker, m.SentAt().Local().Format("2006-01-02 15:04:05"), m.Sender, m.Content)
}

func (p *printListener) OnStatusChanged(st syncx.Status) {
	fmt.Printf("** status: %s\n", st)
}

func (p *printListener) OnFatalError(err error) {
	fmt.Printf("** fatal: %v\n", err)
}

func main() {
	config.ConfigAll()

	var (
		username = flag.String("user", config.GetEnv("CHAT_USER", ""), "登录用户名")
		password = flag.String("pass", config.GetEnv("CHAT_PASS", ""), "登录密码")
		conv     = flag.String("conv", "11111111-1111-1111-1111-111111111111", "会话ID")
	)
	flag.Parse()
	defer logger.Sync()

	sess := session.New()

	if token := os.Getenv("CHAT_TOKEN"); token != "" {
		sess.SetCredential(token)
	} else {
		if *username == "" || *password == "" {
			fmt.Fprintln(os.Stderr, "需要 -user/-pass 登录，或设置 CHAT_TOKEN")
			os.Exit(2)
		}
		auth := session.NewAuthClient(config.Global.ApiBase, config.Global.HTTPTimeout, sess)
		if _, err := auth.Login(context.Background(), *username, *password); err != nil {
			logger.Errorf("login failed: %v", err)
			os.Exit(1)
		}
	}

	hist := history.NewClient(config.Global.ApiBase, config.Global.HTTPTimeout, sess)
	opener := syncx.StompOpener{Dialer: &stomp.Dialer{Conf: stomp.Conf{
		DialTimeout:    config.Global.DialTimeout,
		DeliveryBuffer: config.Global.DeliveryBuffer,
	}}}

	coord := syncx.NewCoordinator(syncx.Conf{
		WsURL:        config.Global.WsURL,
		ReconnectMin: config.Global.ReconnectMin,
		ReconnectMax: config.Global.ReconnectMax,
	}, sess, hist, opener, &printListener{sess: sess})

	if err := coord.Activate(*conv); err != nil {
		logger.Errorf("activate failed: %v", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		coord.Deactivate()
		logger.Sync()
		os.Exit(0)
	}()

	// 逐行读 stdin 发送；引擎不做离线发件箱，掉线时 Send 直接报 NotConnected
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if line == "/quit" {
			break
		}
		if err := coord.Send(line); err != nil {
			if errs.Code(err) == errs.CodeNotConnected {
				fmt.Println("** offline, message not sent")
			} else {
				fmt.Printf("** send failed: %v\n", err)
			}
			continue
		}
		// 本地乐观回显（未确认）；服务端确认的那条会经订阅回流再打印
		fmt.Printf("   (sent: %s)\n", line)
	}

	coord.Deactivate()
}
