package message

import (
	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/config"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

var Module = fx.Module("message",
	fx.Provide(NewFx),
)

// NewFx wires the Message Pipeline with no ImageExtractor: image
// extraction/storage is an external collaborator out of this engine's
// scope (spec §1, §6). A SEND_MESSAGE carrying an image growls instead of
// being silently dropped.
func NewFx(st store.Store, b bus.Bus, cfg *config.Config) *Pipeline {
	return New(st, b, nil, cfg.Chat.MaxMessageSize)
}
