package txfile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/certmgr/pkg/log"
)

// Transaction owns a list of pending Operations until Commit either
// finishes applying all of them or rolls every applied one back.
type Transaction struct {
	ops []*Operation
}

// New creates an empty transaction.
func New() *Transaction {
	return &Transaction{}
}

// Add queues an operation. Apply order equals Add order; revert order is
// its reverse.
func (t *Transaction) Add(op *Operation) {
	t.ops = append(t.ops, op)
}

// Len reports how many operations are queued.
func (t *Transaction) Len() int { return len(t.ops) }

// Commit applies every queued operation in submission order. If any
// operation fails to apply, that operation and every already-applied
// operation are reverted, in reverse order, and the original error is
// returned. If every operation
// applies cleanly, cleanup runs over all of them and nil is returned.
//
// ctx is accepted for the same reason the teacher's blocking health checks
// take one (pkg/health.TCPChecker.Check): these are the suspension points
// of an otherwise synchronous pipeline, even though a mid-syscall cancel
// isn't observed once a Rename or WriteFile has started.
func (t *Transaction) Commit(ctx context.Context) error {
	logger := log.WithComponent("txfile")

	var applied []*Operation
	for i, op := range t.ops {
		select {
		case <-ctx.Done():
			rollback(applied, logger)
			return fmt.Errorf("txfile: commit cancelled before operation %d: %w", i, ctx.Err())
		default:
		}

		if err := op.apply(); err != nil {
			logger.Error().Err(err).Int("operation", i).Msg("commit failed, rolling back")
			// The failing operation may already have moved the original
			// file to its backup path; revert restores it.
			rollback(append(applied, op), logger)
			return fmt.Errorf("txfile: commit failed at operation %d: %w", i, err)
		}
		applied = append(applied, op)
	}

	for _, op := range applied {
		op.cleanup()
	}
	return nil
}

// rollback reverts applied operations in reverse order. Cleanup never runs
// once rollback has started.
func rollback(applied []*Operation, logger zerolog.Logger) {
	for i := len(applied) - 1; i >= 0; i-- {
		applied[i].revert()
	}
	logger.Warn().Int("reverted", len(applied)).Msg("transaction rolled back")
}
