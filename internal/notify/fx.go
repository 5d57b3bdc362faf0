package notify

import (
	"github.com/shafran/commerce/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(provide),
)

func provide(cfg config.Config, log *zap.Logger) Notifier {
	return New(cfg.TelegramBotToken, cfg.TelegramChatID, log)
}
