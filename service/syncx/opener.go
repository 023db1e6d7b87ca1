package syncx

import (
	"context"

	stomp "PChatSync/service/stomp"
)

// StompOpener 把 stomp.Dialer 适配成 Opener（接口返回值不能直接用具体类型满足）。
type StompOpener struct {
	Dialer *stomp.Dialer
}

func (o StompOpener) Open(ctx context.Context, wsURL, token, conversationID string) (Channel, error) {
	s, err := o.Dialer.Open(ctx, wsURL, token, conversationID)
	if err != nil {
		return nil, err
	}
	return s, nil
}
