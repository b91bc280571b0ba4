package reimbursement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medyassinekhlif/TrueCare/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const (
	pgUniqueViolation   = "23505"
	bulletinUniqueIndex = "estimations_bulletin_unique"
)

type estimationRepoPG struct{ pool *pgxpool.Pool }

func NewEstimationRepoPG(pool *pgxpool.Pool) EstimationRepository {
	return &estimationRepoPG{pool: pool}
}

func (r *estimationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const estCols = `id, insurer_id, client_id, medical_bulletin_id, client_name, client_email,
	reimbursement_class, confidence, reimbursement_amount, model_version, created_by, created_at`

func scanEstimation(row pgx.Row) (*Estimation, error) {
	var e Estimation
	err := row.Scan(&e.ID, &e.InsurerID, &e.ClientID, &e.MedicalBulletinID, &e.ClientName, &e.ClientEmail,
		&e.ReimbursementClass, &e.Confidence, &e.ReimbursementAmount, &e.ModelVersion, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEstimationNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *estimationRepoPG) Create(ctx context.Context, e *Estimation) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO estimations (id, insurer_id, client_id, medical_bulletin_id, client_name, client_email,
			reimbursement_class, confidence, reimbursement_amount, model_version, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.InsurerID, e.ClientID, e.MedicalBulletinID, e.ClientName, e.ClientEmail,
		e.ReimbursementClass, e.Confidence, e.ReimbursementAmount, e.ModelVersion, e.CreatedBy, e.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == bulletinUniqueIndex {
		return ErrDuplicateEstimation
	}
	return err
}

func (r *estimationRepoPG) GetByBulletin(ctx context.Context, bulletinID uuid.UUID) (*Estimation, error) {
	return scanEstimation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+estCols+` FROM estimations WHERE medical_bulletin_id = $1`, bulletinID))
}

func (r *estimationRepoPG) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Estimation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+estCols+` FROM estimations WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Estimation
	for rows.Next() {
		e, err := scanEstimation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
