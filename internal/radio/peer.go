package radio

import (
	"context"
	"time"

	"github.com/sweeney/bp-sensor/internal/logic"
)

// PeerScript describes a simulated central that keeps reconnecting.
type PeerScript struct {
	Address      string
	ConnectAfter time.Duration // time spent discoverable before connecting
	Session      time.Duration // connection length
	Flags        logic.NotifyFlags
	Battery      bool
}

// RunPeer plays script against s until ctx is done.
func (s *SimStack) RunPeer(ctx context.Context, script PeerScript) {
	for {
		if !wait(ctx, script.ConnectAfter) {
			return
		}
		if err := s.Connect(script.Address); err != nil {
			continue
		}
		if script.Flags.Any() {
			s.Subscribe(script.Flags)
		}
		if script.Battery {
			s.SubscribeBattery(true)
		}
		if !wait(ctx, script.Session) {
			return
		}
		s.Disconnect()
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
