package room

import (
	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/config"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

var Module = fx.Module("room",
	fx.Provide(NewFx),
)

func NewFx(st store.Store, b bus.Bus, cfg *config.Config) *Lifecycle {
	return New(st, b, cfg.Chat.AllRoomID)
}
