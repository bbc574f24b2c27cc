// Package repository stores endpoint configurations, tenant mappings, dead
// letters and the event log in Postgres or in memory.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/spec-kit/alertbridge/pkg/util/errorutil"
)

// ErrAlreadyReplayed is returned when a dead letter was replayed before.
var ErrAlreadyReplayed = errors.New("dead letter already replayed")

// notFound maps a missing row onto the shared not-found error.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	return err
}
