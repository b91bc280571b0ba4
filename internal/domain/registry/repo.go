package registry

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
}

type InsurerRepository interface {
	Create(ctx context.Context, i *Insurer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Insurer, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Insurer, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	UpdatePlans(ctx context.Context, id uuid.UUID, plans []PlanTier) error
	AddClient(ctx context.Context, insurerID, clientID uuid.UUID) error
}

type ClientRepository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Client, error)
	ExistsByNationalID(ctx context.Context, nationalID string) (bool, error)
	ListByInsurer(ctx context.Context, insurerID uuid.UUID) ([]*Client, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
}

type BulletinRepository interface {
	Create(ctx context.Context, b *MedicalBulletin) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalBulletin, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*MedicalBulletin, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*MedicalBulletin, error)
}

// Transactor runs fn atomically. Repositories called with the ctx passed to
// fn join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repos bundles the registry repositories of one storage backend.
type Repos struct {
	Users     UserRepository
	Insurers  InsurerRepository
	Clients   ClientRepository
	Doctors   DoctorRepository
	Bulletins BulletinRepository
	Tx        Transactor
}
