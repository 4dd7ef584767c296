package bus

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/config"
)

var Module = fx.Module("bus",
	fx.Provide(NewBusFx),
)

// NewBusFx connects the Bus Adapter to Redis and wires its lifecycle into
// fx. A blank RedisAddr is only expected in tests, which provide their own
// Bus (usually MemoryBus) directly and do not install this module.
func NewBusFx(lc fx.Lifecycle, cfg *config.Config) (Bus, error) {
	b, err := NewRedisBus(cfg.Bus.RedisAddr, cfg.Bus.RedisPassword, cfg.Bus.RedisDB)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to bus", "addr", cfg.Bus.RedisAddr)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Info("closing bus connection")
			return b.Close()
		},
	})

	return b, nil
}
