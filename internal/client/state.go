package client

import "fmt"

// State はクライアントのハンドシェイク状態を表す。
type State int

// ハンドシェイクの状態。鍵交換済みの状態は KeyExchanged(n) で表す。
const (
	StateDisconnected State = iota
	StateSessionStarted
)

// KeyExchanged はn番目のスロットまで鍵交換が完了した状態を返す。
func KeyExchanged(n int) State {
	return StateSessionStarted + State(n)
}

// ExchangedSlots は鍵交換済みのスロット数を返す。
func (s State) ExchangedSlots() int {
	if s <= StateSessionStarted {
		return 0
	}
	return int(s - StateSessionStarted)
}

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSessionStarted:
		return "session_started"
	default:
		return fmt.Sprintf("key%d_exchanged", s.ExchangedSlots())
	}
}
