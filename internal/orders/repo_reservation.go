package orders

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"time"
)

// OpenIntent journals an attempt before any in-memory reservation is made.
func (r *Repo) OpenIntent(ctx context.Context, in *Intent) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO intents(id, kind, ref, state)
		VALUES ($1, $2, $3, 'OPEN')
		RETURNING created_at, updated_at`, in.ID, string(in.Kind), in.Ref).
		Scan(&in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return err
	}
	in.State = IntentOpen
	return nil
}

// closeIntent: CAS OPEN -> state. Intent yg sudah ditutup (mis. RECLAIMED) -> ErrIntentClosed.
func closeIntent(ctx context.Context, tx pgx.Tx, id string, state IntentState) error {
	ct, err := tx.Exec(ctx, `
		UPDATE intents SET state=$2, updated_at=now()
		WHERE id=$1 AND state='OPEN'`, id, string(state))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrIntentClosed
	}
	return nil
}

// AbortIntent marks an OPEN intent ABORTED. Closed intents are left alone.
func (r *Repo) AbortIntent(ctx context.Context, id string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE intents SET state='ABORTED', updated_at=now()
		WHERE id=$1 AND state='OPEN'`, id)
	return err
}

// ReclaimIntents closes every intent still OPEN that was created before the
// cutoff. A reclaimed intent can no longer commit.
func (r *Repo) ReclaimIntents(ctx context.Context, before time.Time) (int, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE intents SET state='RECLAIMED', updated_at=now()
		WHERE state='OPEN' AND created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *Repo) GetIntent(ctx context.Context, id string) (*Intent, error) {
	var in Intent
	var kind, state string
	err := r.DB.QueryRow(ctx, `
		SELECT id, kind, ref, state, created_at, updated_at FROM intents WHERE id=$1`, id).
		Scan(&in.ID, &kind, &in.Ref, &state, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	in.Kind, in.State = IntentKind(kind), IntentState(state)
	return &in, nil
}
