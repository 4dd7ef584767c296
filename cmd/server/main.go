package main

import (
	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/auth"
	"github.com/jycamier/chatfanout/backend/internal/bus"
	"github.com/jycamier/chatfanout/backend/internal/config"
	"github.com/jycamier/chatfanout/backend/internal/httpapi"
	"github.com/jycamier/chatfanout/backend/internal/ipenrich"
	"github.com/jycamier/chatfanout/backend/internal/logger"
	"github.com/jycamier/chatfanout/backend/internal/message"
	"github.com/jycamier/chatfanout/backend/internal/presence"
	"github.com/jycamier/chatfanout/backend/internal/room"
	"github.com/jycamier/chatfanout/backend/internal/router"
	"github.com/jycamier/chatfanout/backend/internal/store/migration"
	"github.com/jycamier/chatfanout/backend/internal/store/postgres"
)

func main() {
	// Load logger config early to configure fx logger
	logCfg := logger.LoadConfig()
	logger.Setup(logCfg)

	fx.New(
		// Use our slog-based logger for fx (or NopLogger if FX_LOGS=false)
		logger.FxLogger(logCfg),

		// Supply the already-loaded config
		fx.Supply(logCfg),

		// Modules
		///
		logger.Module,
		config.Module,
		migration.Module,
		postgres.Module,
		bus.Module,
		auth.Module,
		presence.Module,
		room.Module,
		message.Module,
		ipenrich.Module,
		router.Module,
		httpapi.Module,
	).Run()
}
