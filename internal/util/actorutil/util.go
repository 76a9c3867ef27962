package actorutil

import (
	"log/slog"
	"strconv"
	"time"

	"fieldsim/internal/core/domain"
	"fieldsim/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedPointCommandToRequest turns an MQTT set command into the matching
// simulator write request. The payload is a number for analog points and
// "active"/"inactive" for binary ones.
func ParsedPointCommandToRequest(cmd mqtt.ParsedPointCommand) (domain.ActorRequest, error) {
	id, err := domain.ParseObjectID(cmd.ObjectID)
	if err != nil {
		return nil, err
	}
	var value any
	if id.Kind.Analog() {
		v, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, err
		}
		value = v
	} else {
		s, err := domain.ParseBinaryState(cmd.Payload)
		if err != nil {
			return nil, err
		}
		value = s
	}
	return domain.SetPointRequest{
		DeviceName: cmd.DeviceName,
		ID:         id,
		Value:      value,
	}, nil
}
