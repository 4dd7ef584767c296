package ipenrich

import (
	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/config"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

var Module = fx.Module("ipenrich",
	fx.Provide(NewEnricherFx),
	fx.Provide(New),
)

func NewEnricherFx(cfg *config.Config) store.IPEnricher {
	return NewHTTPEnricher(cfg.Chat.IPAPIURL)
}
