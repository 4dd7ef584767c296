package auth

import (
	"go.uber.org/fx"

	"github.com/jycamier/chatfanout/backend/internal/config"
)

var Module = fx.Module("auth",
	fx.Provide(NewJWTManagerFx),
	fx.Provide(NewAuthenticatorFx),
)

func NewJWTManagerFx(cfg *config.Config) *JWTManager {
	return NewJWTManager(cfg.Auth.JWTSecret)
}

func NewAuthenticatorFx(jwt *JWTManager, cfg *config.Config) *Authenticator {
	return NewAuthenticator(jwt, cfg.Auth.SessionCookieName)
}
