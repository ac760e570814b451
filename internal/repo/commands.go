package repo

import (
	"context"

	"roaming/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CommandsRepo struct{ db *pgxpool.Pool }

func NewCommandsRepo(db *pgxpool.Pool) *CommandsRepo { return &CommandsRepo{db: db} }

func (r *CommandsRepo) Create(ctx context.Context, c models.Command) (string, error) {
	row := r.db.QueryRow(ctx, `
		insert into roaming_commands (tenant_id, endpoint_id, type, payload, status)
		values ($1,$2,$3,$4,$5)
		returning command_id
	`, c.TenantID, c.EndpointID, c.Type, c.PayloadJSON, c.Status)

	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *CommandsRepo) Get(ctx context.Context, tenantID, id string) (*models.Command, error) {
	row := r.db.QueryRow(ctx, `
		select command_id, tenant_id, endpoint_id, type, payload, status, response, error, created_at, updated_at
		from roaming_commands where tenant_id=$1 and command_id=$2
	`, tenantID, id)

	var c models.Command
	if err := row.Scan(&c.CommandID, &c.TenantID, &c.EndpointID, &c.Type, &c.PayloadJSON, &c.Status, &c.ResponseJSON, &c.Error, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *CommandsRepo) MarkSent(ctx context.Context, tenantID, id string) error {
	_, err := r.db.Exec(ctx, `update roaming_commands set status='Sent', updated_at=now() where tenant_id=$1 and command_id=$2`, tenantID, id)
	return err
}

func (r *CommandsRepo) MarkAcked(ctx context.Context, tenantID, id string, response []byte) error {
	_, err := r.db.Exec(ctx, `update roaming_commands set status='Acked', response=$3, updated_at=now() where tenant_id=$1 and command_id=$2`, tenantID, id, response)
	return err
}

func (r *CommandsRepo) MarkFailed(ctx context.Context, tenantID, id string, errMsg string) error {
	_, err := r.db.Exec(ctx, `update roaming_commands set status='Failed', error=$3, updated_at=now() where tenant_id=$1 and command_id=$2`, tenantID, id, errMsg)
	return err
}
