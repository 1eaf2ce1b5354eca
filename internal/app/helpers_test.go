package app

import (
	"log/slog"

	"github.com/PermAdut/autoservice-notify/pkg/logger"
)

func slogDiscard() *slog.Logger { return logger.NewNope() }
