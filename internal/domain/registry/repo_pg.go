package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

const pgUniqueViolation = "23505"

// mapPGError translates driver errors into registry sentinels.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// NewReposPG returns every registry repository backed by pool.
func NewReposPG(pool *pgxpool.Pool) *Repos {
	return &Repos{
		Users:     NewUserRepoPG(pool),
		Insurers:  NewInsurerRepoPG(pool),
		Clients:   NewClientRepoPG(pool),
		Doctors:   NewDoctorRepoPG(pool),
		Bulletins: NewBulletinRepoPG(pool),
		Tx:        NewTransactorPG(pool),
	}
}

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

const userCols = `id, email, role, phone_number, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Role, &u.PhoneNumber, &u.CreatedAt); err != nil {
		return nil, mapPGError(err)
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, email, role, phone_number)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		u.ID, u.Email, u.Role, u.PhoneNumber).Scan(&u.CreatedAt)
	return mapPGError(err)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *userRepoPG) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 OR ($2 <> '' AND phone_number = $2))`,
		email, phone).Scan(&exists)
	return exists, err
}

// =========== Insurer Repository ===========

type insurerRepoPG struct{ pool *pgxpool.Pool }

func NewInsurerRepoPG(pool *pgxpool.Pool) InsurerRepository { return &insurerRepoPG{pool: pool} }

const insurerCols = `id, user_id, company_name, verified, plans, created_at, updated_at`

func (r *insurerRepoPG) scanInsurer(ctx context.Context, row pgx.Row) (*Insurer, error) {
	var (
		i     Insurer
		plans []byte
	)
	if err := row.Scan(&i.ID, &i.UserID, &i.CompanyName, &i.Verified, &plans, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, mapPGError(err)
	}
	if len(plans) > 0 {
		if err := json.Unmarshal(plans, &i.Plans); err != nil {
			return nil, fmt.Errorf("decode plans of insurer %s: %w", i.ID, err)
		}
	}
	ids, err := r.clientIDs(ctx, i.ID)
	if err != nil {
		return nil, err
	}
	i.ClientIDs = ids
	return &i, nil
}

func (r *insurerRepoPG) clientIDs(ctx context.Context, insurerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT client_id FROM insurer_clients WHERE insurer_id = $1 ORDER BY added_at`, insurerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *insurerRepoPG) Create(ctx context.Context, i *Insurer) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	plans, err := json.Marshal(i.Plans)
	if err != nil {
		return fmt.Errorf("encode plans: %w", err)
	}
	err = conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO insurers (id, user_id, company_name, verified, plans)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		i.ID, i.UserID, i.CompanyName, i.Verified, plans).Scan(&i.CreatedAt, &i.UpdatedAt)
	return mapPGError(err)
}

func (r *insurerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Insurer, error) {
	return r.scanInsurer(ctx, conn(ctx, r.pool).QueryRow(ctx, `SELECT `+insurerCols+` FROM insurers WHERE id = $1`, id))
}

func (r *insurerRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Insurer, error) {
	return r.scanInsurer(ctx, conn(ctx, r.pool).QueryRow(ctx, `SELECT `+insurerCols+` FROM insurers WHERE user_id = $1`, userID))
}

func (r *insurerRepoPG) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE insurers SET verified = $2, updated_at = NOW() WHERE id = $1`, id, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *insurerRepoPG) UpdatePlans(ctx context.Context, id uuid.UUID, plans []PlanTier) error {
	raw, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("encode plans: %w", err)
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE insurers SET plans = $2, updated_at = NOW() WHERE id = $1`, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *insurerRepoPG) AddClient(ctx context.Context, insurerID, clientID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO insurer_clients (insurer_id, client_id) VALUES ($1, $2)`,
		insurerID, clientID)
	return mapPGError(err)
}

// =========== Client Repository ===========

type clientRepoPG struct{ pool *pgxpool.Pool }

func NewClientRepoPG(pool *pgxpool.Pool) ClientRepository { return &clientRepoPG{pool: pool} }

const clientCols = `id, user_id, insurer_id, name, birth_date, national_id, job,
	health_conditions, smoker, exercise, plan_min, plan_max, created_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.UserID, &c.InsurerID, &c.Name, &c.BirthDate, &c.NationalID, &c.Job,
		&c.Health.Conditions, &c.Health.Smoker, &c.Health.Exercise,
		&c.Plan.Range.Min, &c.Plan.Range.Max, &c.CreatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &c, nil
}

func (r *clientRepoPG) Create(ctx context.Context, c *Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clients (id, user_id, insurer_id, name, birth_date, national_id, job,
			health_conditions, smoker, exercise, plan_min, plan_max)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		c.ID, c.UserID, c.InsurerID, c.Name, c.BirthDate, c.NationalID, c.Job,
		c.Health.Conditions, c.Health.Smoker, c.Health.Exercise,
		c.Plan.Range.Min, c.Plan.Range.Max).Scan(&c.CreatedAt)
	return mapPGError(err)
}

func (r *clientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	return scanClient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE id = $1`, id))
}

func (r *clientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Client, error) {
	return scanClient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE user_id = $1`, userID))
}

func (r *clientRepoPG) ExistsByNationalID(ctx context.Context, nationalID string) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM clients WHERE national_id = $1)`, nationalID).Scan(&exists)
	return exists, err
}

func (r *clientRepoPG) ListByInsurer(ctx context.Context, insurerID uuid.UUID) ([]*Client, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT c.id, c.user_id, c.insurer_id, c.name, c.birth_date, c.national_id, c.job,
			c.health_conditions, c.smoker, c.exercise, c.plan_min, c.plan_max, c.created_at
		FROM clients c
		JOIN insurer_clients ic ON ic.client_id = c.id
		WHERE ic.insurer_id = $1
		ORDER BY ic.added_at`, insurerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

const doctorCols = `id, user_id, full_name, specialty, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.Specialty, &d.CreatedAt); err != nil {
		return nil, mapPGError(err)
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, full_name, specialty)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		d.ID, d.UserID, d.FullName, d.Specialty).Scan(&d.CreatedAt)
	return mapPGError(err)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return scanDoctor(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE user_id = $1`, userID))
}

// =========== Bulletin Repository ===========

type bulletinRepoPG struct{ pool *pgxpool.Pool }

func NewBulletinRepoPG(pool *pgxpool.Pool) BulletinRepository { return &bulletinRepoPG{pool: pool} }

const bulletinCols = `id, doctor_id, client_id, diagnosis, sessions_attended,
	treatment_duration, treatment_type, case_severity, total_amount_paid, currency, created_at`

func scanBulletin(row pgx.Row) (*MedicalBulletin, error) {
	var b MedicalBulletin
	err := row.Scan(&b.ID, &b.DoctorID, &b.ClientID,
		&b.Treatment.Diagnosis, &b.Treatment.SessionsAttended,
		&b.Treatment.Duration, &b.Treatment.Type, &b.Treatment.CaseSeverity,
		&b.Financial.TotalAmountPaid, &b.Financial.Currency, &b.CreatedAt)
	if err != nil {
		return nil, mapPGError(err)
	}
	return &b, nil
}

func (r *bulletinRepoPG) Create(ctx context.Context, b *MedicalBulletin) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medical_bulletins (id, doctor_id, client_id, diagnosis, sessions_attended,
			treatment_duration, treatment_type, case_severity, total_amount_paid, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		b.ID, b.DoctorID, b.ClientID,
		b.Treatment.Diagnosis, b.Treatment.SessionsAttended,
		b.Treatment.Duration, b.Treatment.Type, b.Treatment.CaseSeverity,
		b.Financial.TotalAmountPaid, b.Financial.Currency).Scan(&b.CreatedAt)
	return mapPGError(err)
}

func (r *bulletinRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalBulletin, error) {
	return scanBulletin(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+bulletinCols+` FROM medical_bulletins WHERE id = $1`, id))
}

func (r *bulletinRepoPG) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*MedicalBulletin, error) {
	return r.list(ctx, `SELECT `+bulletinCols+` FROM medical_bulletins WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

func (r *bulletinRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*MedicalBulletin, error) {
	return r.list(ctx, `SELECT `+bulletinCols+` FROM medical_bulletins WHERE doctor_id = $1 ORDER BY created_at DESC`, doctorID)
}

func (r *bulletinRepoPG) list(ctx context.Context, query string, arg uuid.UUID) ([]*MedicalBulletin, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*MedicalBulletin
	for rows.Next() {
		b, err := scanBulletin(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
