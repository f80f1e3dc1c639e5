package history

import (
	"context"

	"github.com/dmitrijs2005/blefs/internal/dbx"
)

// Maintain closes out records left running by a dead process and trims the
// history to the newest keep records, in one transaction.
func Maintain(ctx context.Context, db dbx.TxBeginner, keep int) (interrupted, pruned int64, err error) {
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := NewSQLiteRepository(tx)
		var err error
		if interrupted, err = r.Interrupt(ctx); err != nil {
			return err
		}
		pruned, err = r.Prune(ctx, keep)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return interrupted, pruned, nil
}
