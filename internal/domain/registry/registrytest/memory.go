// Package registrytest provides map-backed registry repositories for tests
// in packages that depend on the registry.
package registrytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
)

// Store holds every registry record in memory. It enforces the same unique
// keys as the database schemas. WithinTx does not roll back.
type Store struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*registry.User
	insurers  map[uuid.UUID]*registry.Insurer
	clients   map[uuid.UUID]*registry.Client
	doctors   map[uuid.UUID]*registry.Doctor
	bulletins map[uuid.UUID]*registry.MedicalBulletin
	owner     map[uuid.UUID]uuid.UUID // client id -> insurer id
}

func New() *Store {
	return &Store{
		users:     make(map[uuid.UUID]*registry.User),
		insurers:  make(map[uuid.UUID]*registry.Insurer),
		clients:   make(map[uuid.UUID]*registry.Client),
		doctors:   make(map[uuid.UUID]*registry.Doctor),
		bulletins: make(map[uuid.UUID]*registry.MedicalBulletin),
		owner:     make(map[uuid.UUID]uuid.UUID),
	}
}

// Repos returns repositories sharing this store.
func (s *Store) Repos() *registry.Repos {
	return &registry.Repos{
		Users:     (*userRepo)(s),
		Insurers:  (*insurerRepo)(s),
		Clients:   (*clientRepo)(s),
		Doctors:   (*doctorRepo)(s),
		Bulletins: (*bulletinRepo)(s),
		Tx:        transactor{},
	}
}

type transactor struct{}

func (transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func notFound(kind string, key interface{}) error {
	return fmt.Errorf("%w: %s %v", registry.ErrNotFound, kind, key)
}

// -- Seeding helpers --

// AddInsurer stores an insurer and its account, returning the insurer.
func (s *Store) AddInsurer(email string, verified bool) *registry.Insurer {
	u := &registry.User{ID: uuid.New(), Email: email, Role: registry.RoleInsurer, CreatedAt: time.Now()}
	ins := &registry.Insurer{
		ID: uuid.New(), UserID: u.ID, CompanyName: "Insurer " + email,
		Verified: verified, Plans: registry.DefaultPlans(), CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	s.insurers[ins.ID] = ins
	return ins
}

// AddClient stores a client and its account under insurer. A nil insurer
// leaves the client unowned.
func (s *Store) AddClient(insurer *registry.Insurer, name, email string) *registry.Client {
	u := &registry.User{ID: uuid.New(), Email: email, Role: registry.RoleClient, CreatedAt: time.Now()}
	c := &registry.Client{
		ID:        uuid.New(),
		UserID:    u.ID,
		Name:      name,
		BirthDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Job:       "engineer",
		Health:    registry.Health{Exercise: registry.ExerciseSometimes},
		Plan:      registry.ClientPlan{Range: registry.PlanRange{Min: 70, Max: 85}},
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.NationalID = fmt.Sprintf("%08d", len(s.clients)+1)
	s.users[u.ID] = u
	if insurer != nil {
		c.InsurerID = insurer.ID
		s.owner[c.ID] = insurer.ID
		if stored, ok := s.insurers[insurer.ID]; ok {
			stored.ClientIDs = append(stored.ClientIDs, c.ID)
			insurer.ClientIDs = stored.ClientIDs
		}
	}
	s.clients[c.ID] = c
	return c
}

// AddDoctor stores a doctor and its account.
func (s *Store) AddDoctor(email string) *registry.Doctor {
	u := &registry.User{ID: uuid.New(), Email: email, Role: registry.RoleDoctor, CreatedAt: time.Now()}
	d := &registry.Doctor{ID: uuid.New(), UserID: u.ID, FullName: "Dr " + email, CreatedAt: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	s.doctors[d.ID] = d
	return d
}

// AddBulletin stores a bulletin for client with the given amount paid.
func (s *Store) AddBulletin(doctor *registry.Doctor, client *registry.Client, amount float64) *registry.MedicalBulletin {
	b := &registry.MedicalBulletin{
		ID:        uuid.New(),
		ClientID:  client.ID,
		Treatment: registry.Treatment{Diagnosis: "lumbar strain", SessionsAttended: 4, CaseSeverity: 2},
		Financial: registry.Financial{TotalAmountPaid: amount, Currency: registry.DefaultCurrency},
		CreatedAt: time.Now(),
	}
	if doctor != nil {
		b.DoctorID = doctor.ID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulletins[b.ID] = b
	return b
}

// DeleteUser removes an account, leaving profiles that reference it dangling.
func (s *Store) DeleteUser(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// -- Users --

type userRepo Store

func (r *userRepo) Create(_ context.Context, u *registry.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: users_email_key", registry.ErrConflict)
		}
		if u.PhoneNumber != nil && existing.PhoneNumber != nil && *existing.PhoneNumber == *u.PhoneNumber {
			return fmt.Errorf("%w: users_phone_number_key", registry.ErrConflict)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*registry.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*registry.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("user", email)
}

func (r *userRepo) ExistsByEmailOrPhone(_ context.Context, email, phone string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email || (phone != "" && u.PhoneNumber != nil && *u.PhoneNumber == phone) {
			return true, nil
		}
	}
	return false, nil
}

// -- Insurers --

type insurerRepo Store

func (r *insurerRepo) Create(_ context.Context, i *registry.Insurer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.insurers {
		if existing.UserID == i.UserID {
			return fmt.Errorf("%w: insurers_user_id_key", registry.ErrConflict)
		}
	}
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.CreatedAt, i.UpdatedAt = time.Now(), time.Now()
	cp := *i
	r.insurers[i.ID] = &cp
	return nil
}

func (r *insurerRepo) copyOf(i *registry.Insurer) *registry.Insurer {
	cp := *i
	cp.ClientIDs = append([]uuid.UUID(nil), i.ClientIDs...)
	cp.Plans = append([]registry.PlanTier(nil), i.Plans...)
	return &cp
}

func (r *insurerRepo) GetByID(_ context.Context, id uuid.UUID) (*registry.Insurer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.insurers[id]
	if !ok {
		return nil, notFound("insurer", id)
	}
	return r.copyOf(i), nil
}

func (r *insurerRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*registry.Insurer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.insurers {
		if i.UserID == userID {
			return r.copyOf(i), nil
		}
	}
	return nil, notFound("insurer for user", userID)
}

func (r *insurerRepo) SetVerified(_ context.Context, id uuid.UUID, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.insurers[id]
	if !ok {
		return notFound("insurer", id)
	}
	i.Verified = verified
	i.UpdatedAt = time.Now()
	return nil
}

func (r *insurerRepo) UpdatePlans(_ context.Context, id uuid.UUID, plans []registry.PlanTier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.insurers[id]
	if !ok {
		return notFound("insurer", id)
	}
	i.Plans = append([]registry.PlanTier(nil), plans...)
	i.UpdatedAt = time.Now()
	return nil
}

func (r *insurerRepo) AddClient(_ context.Context, insurerID, clientID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.insurers[insurerID]
	if !ok {
		return notFound("insurer", insurerID)
	}
	if _, taken := r.owner[clientID]; taken {
		return fmt.Errorf("%w: insurer_clients_client_id_key", registry.ErrConflict)
	}
	r.owner[clientID] = insurerID
	i.ClientIDs = append(i.ClientIDs, clientID)
	return nil
}

// -- Clients --

type clientRepo Store

func (r *clientRepo) Create(_ context.Context, c *registry.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.clients {
		if existing.NationalID == c.NationalID {
			return fmt.Errorf("%w: clients_national_id_key", registry.ErrConflict)
		}
		if existing.UserID == c.UserID {
			return fmt.Errorf("%w: clients_user_id_key", registry.ErrConflict)
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	cp := *c
	r.clients[c.ID] = &cp
	return nil
}

func (r *clientRepo) GetByID(_ context.Context, id uuid.UUID) (*registry.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, notFound("client", id)
	}
	cp := *c
	return &cp, nil
}

func (r *clientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*registry.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("client for user", userID)
}

func (r *clientRepo) ExistsByNationalID(_ context.Context, nationalID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.NationalID == nationalID {
			return true, nil
		}
	}
	return false, nil
}

func (r *clientRepo) ListByInsurer(_ context.Context, insurerID uuid.UUID) ([]*registry.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*registry.Client
	for id, owner := range r.owner {
		if owner != insurerID {
			continue
		}
		if c, ok := r.clients[id]; ok {
			cp := *c
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// -- Doctors --

type doctorRepo Store

func (r *doctorRepo) Create(_ context.Context, d *registry.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

func (r *doctorRepo) GetByID(_ context.Context, id uuid.UUID) (*registry.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, notFound("doctor", id)
	}
	cp := *d
	return &cp, nil
}

func (r *doctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*registry.Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, notFound("doctor for user", userID)
}

// -- Bulletins --

type bulletinRepo Store

func (r *bulletinRepo) Create(_ context.Context, b *registry.MedicalBulletin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now()
	cp := *b
	r.bulletins[b.ID] = &cp
	return nil
}

func (r *bulletinRepo) GetByID(_ context.Context, id uuid.UUID) (*registry.MedicalBulletin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bulletins[id]
	if !ok {
		return nil, notFound("bulletin", id)
	}
	cp := *b
	return &cp, nil
}

func (r *bulletinRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]*registry.MedicalBulletin, error) {
	return r.filter(func(b *registry.MedicalBulletin) bool { return b.ClientID == clientID }), nil
}

func (r *bulletinRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*registry.MedicalBulletin, error) {
	return r.filter(func(b *registry.MedicalBulletin) bool { return b.DoctorID == doctorID }), nil
}

func (r *bulletinRepo) filter(keep func(*registry.MedicalBulletin) bool) []*registry.MedicalBulletin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*registry.MedicalBulletin
	for _, b := range r.bulletins {
		if keep(b) {
			cp := *b
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items
}
