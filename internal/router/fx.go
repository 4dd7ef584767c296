package router

import (
	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/config"
	"github.com/jycamier/chatfanout/backend/internal/message"
	"github.com/jycamier/chatfanout/backend/internal/presence"
	"github.com/jycamier/chatfanout/backend/internal/room"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

var Module = fx.Module("router",
	fx.Provide(NewRouterFx),
)

func NewRouterFx(st store.Store, b bus.Bus, pr *presence.Tracker, rooms *room.Lifecycle, messages *message.Pipeline, cfg *config.Config) *Router {
	return New(st, b, pr, rooms, messages, NoopPolicy{}, cfg.Chat.AllRoomID)
}
