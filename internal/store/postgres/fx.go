package postgres

import (
	"context"
	"errors"
	"log/slog"

	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/config"
	"github.com/jycamier/chatfanout/backend/internal/store"
)

var Module = fx.Module("store",
	fx.Provide(NewStoreFx),
)

// NewStoreFx creates the Store Gateway and wires its lifecycle into fx.
func NewStoreFx(lc fx.Lifecycle, cfg *config.Config) (store.Store, error) {
	s, err := New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return nil, errors.New("failed to connect to database")
	}
	slog.Info("connected to database")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			s.Close()
			slog.Info("database connection closed")
			return nil
		},
	})

	return s, nil
}
