package worker

import (
	"context"

	"github.com/jmehdipour/coin-faucet/internal/kafka"
)

// Source is the part of *kafka.Consumer the workers use.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}
