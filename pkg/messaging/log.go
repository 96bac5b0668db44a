package messaging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// logBroker writes published messages to the process log. It backs
// single-instance and development deployments where no broker is
// configured; subscribers are not supported.
type logBroker struct {
	logger *zerolog.Logger
}

func NewLogBroker(logger *zerolog.Logger) Broker {
	return &logBroker{logger: logger}
}

func (b *logBroker) Publish(_ context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.logger.Info().Str("channel", channel).RawJSON("message", payload).Msg("publish")
	return nil
}

func (b *logBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *logBroker) Close() error {
	return nil
}
