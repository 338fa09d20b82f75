package stage

import (
	"context"

	"autoprint/internal/ledger"
)

// Handler describes the contract the pipeline manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *ledger.Entry) error
	Execute(context.Context, *ledger.Entry) error
	HealthCheck(context.Context) Health
}
