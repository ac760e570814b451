package repo

import (
	"context"

	"roaming/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TagsRepo struct{ db *pgxpool.Pool }

func NewTagsRepo(db *pgxpool.Pool) *TagsRepo { return &TagsRepo{db: db} }

const tagColumns = `tag_id, tenant_id, user_id, description, visual_number, active, issuer, last_changed_on`

func scanTag(row pgx.Row) (*models.Tag, error) {
	var t models.Tag
	if err := row.Scan(&t.ID, &t.TenantID, &t.UserID, &t.Description, &t.VisualNumber, &t.Active, &t.Issuer, &t.LastChangedOn); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TagsRepo) Upsert(ctx context.Context, t models.Tag) error {
	_, err := r.db.Exec(ctx, `
		insert into tags (tag_id, tenant_id, user_id, description, visual_number, active, issuer, last_changed_on)
		values ($1,$2,$3,$4,$5,$6,$7,now())
		on conflict (tenant_id, tag_id) do update set
		  user_id=excluded.user_id,
		  description=excluded.description,
		  visual_number=excluded.visual_number,
		  active=excluded.active,
		  issuer=excluded.issuer,
		  last_changed_on=now()
	`, t.ID, t.TenantID, t.UserID, t.Description, t.VisualNumber, t.Active, t.Issuer)
	return err
}

func (r *TagsRepo) Get(ctx context.Context, tenantID, id string) (*models.Tag, error) {
	t, err := scanTag(r.db.QueryRow(ctx, `select `+tagColumns+` from tags where tenant_id=$1 and tag_id=$2`, tenantID, id))
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListIssued pages through the tags issued by this tenant, ordered by id.
func (r *TagsRepo) ListIssued(ctx context.Context, tenantID string, offset, limit int) ([]models.Tag, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		select `+tagColumns+`
		from tags where tenant_id=$1 and issuer=true
		order by tag_id
		offset $2 limit $3
	`, tenantID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
