package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medyassinekhlif/TrueCare/internal/platform/mongodb"
)

const (
	collUsers     = "users"
	collInsurers  = "insurers"
	collClients   = "clients"
	collDoctors   = "doctors"
	collBulletins = "medicalbulletins"
)

// MongoIndexes lists the indexes the registry collections rely on.
func MongoIndexes() []mongodb.Index {
	return []mongodb.Index{
		{Collection: collUsers, Keys: bson.D{{Key: "email", Value: 1}}, Unique: true, Name: "users_email_unique"},
		{Collection: collUsers, Keys: bson.D{{Key: "phoneNumber", Value: 1}}, Unique: true, Sparse: true, Name: "users_phone_unique"},
		{Collection: collInsurers, Keys: bson.D{{Key: "userId", Value: 1}}, Unique: true, Name: "insurers_user_unique"},
		{Collection: collClients, Keys: bson.D{{Key: "userId", Value: 1}}, Unique: true, Name: "clients_user_unique"},
		{Collection: collClients, Keys: bson.D{{Key: "nationalId", Value: 1}}, Unique: true, Name: "clients_national_id_unique"},
		{Collection: collClients, Keys: bson.D{{Key: "insurerId", Value: 1}}, Name: "clients_insurer"},
		{Collection: collDoctors, Keys: bson.D{{Key: "userId", Value: 1}}, Unique: true, Name: "doctors_user_unique"},
		{Collection: collBulletins, Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "createdAt", Value: -1}}, Name: "bulletins_client"},
		{Collection: collBulletins, Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "createdAt", Value: -1}}, Name: "bulletins_doctor"},
	}
}

// NewReposMongo returns every registry repository backed by store.
func NewReposMongo(store *mongodb.Store) *Repos {
	return &Repos{
		Users:     &userRepoMongo{coll: store.DB.Collection(collUsers)},
		Insurers:  &insurerRepoMongo{coll: store.DB.Collection(collInsurers)},
		Clients:   &clientRepoMongo{coll: store.DB.Collection(collClients)},
		Doctors:   &doctorRepoMongo{coll: store.DB.Collection(collDoctors)},
		Bulletins: &bulletinRepoMongo{coll: store.DB.Collection(collBulletins)},
		Tx:        NewTransactorMongo(store),
	}
}

func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func parseDocID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("stored %s %q is not a uuid: %w", field, raw, err)
	}
	return id, nil
}

func byID(id uuid.UUID) bson.M { return bson.M{"_id": id.String()} }

// =========== Users ===========

type userDoc struct {
	ID          string    `bson:"_id"`
	Email       string    `bson:"email"`
	Role        string    `bson:"role"`
	PhoneNumber *string   `bson:"phoneNumber,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func (d *userDoc) model() (*User, error) {
	id, err := parseDocID("user id", d.ID)
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Email: d.Email, Role: d.Role, PhoneNumber: d.PhoneNumber, CreatedAt: d.CreatedAt}, nil
}

type userRepoMongo struct{ coll *mongo.Collection }

func (r *userRepoMongo) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	doc := userDoc{ID: u.ID.String(), Email: u.Email, Role: u.Role, PhoneNumber: u.PhoneNumber, CreatedAt: u.CreatedAt}
	_, err := r.coll.InsertOne(ctx, doc)
	return mapMongoError(err)
}

func (r *userRepoMongo) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.model()
}

func (r *userRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findOne(ctx, byID(id))
}

func (r *userRepoMongo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepoMongo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	or := bson.A{bson.M{"email": email}}
	if phone != "" {
		or = append(or, bson.M{"phoneNumber": phone})
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"$or": or}, options.Count().SetLimit(1))
	return n > 0, err
}

// =========== Insurers ===========

type insurerDoc struct {
	ID          string     `bson:"_id"`
	UserID      string     `bson:"userId"`
	CompanyName string     `bson:"companyName"`
	Verified    bool       `bson:"verified"`
	Plans       []PlanTier `bson:"plans"`
	Clients     []string   `bson:"clients"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

func (d *insurerDoc) model() (*Insurer, error) {
	id, err := parseDocID("insurer id", d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := parseDocID("insurer user id", d.UserID)
	if err != nil {
		return nil, err
	}
	i := &Insurer{
		ID: id, UserID: userID, CompanyName: d.CompanyName, Verified: d.Verified,
		Plans: d.Plans, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	for _, raw := range d.Clients {
		cid, err := parseDocID("insurer client id", raw)
		if err != nil {
			return nil, err
		}
		i.ClientIDs = append(i.ClientIDs, cid)
	}
	return i, nil
}

type insurerRepoMongo struct{ coll *mongo.Collection }

func (r *insurerRepoMongo) Create(ctx context.Context, i *Insurer) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	now := time.Now().UTC()
	i.CreatedAt, i.UpdatedAt = now, now
	doc := insurerDoc{
		ID: i.ID.String(), UserID: i.UserID.String(), CompanyName: i.CompanyName,
		Verified: i.Verified, Plans: i.Plans, Clients: []string{},
		CreatedAt: now, UpdatedAt: now,
	}
	for _, cid := range i.ClientIDs {
		doc.Clients = append(doc.Clients, cid.String())
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return mapMongoError(err)
}

func (r *insurerRepoMongo) findOne(ctx context.Context, filter bson.M) (*Insurer, error) {
	var doc insurerDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.model()
}

func (r *insurerRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Insurer, error) {
	return r.findOne(ctx, byID(id))
}

func (r *insurerRepoMongo) GetByUserID(ctx context.Context, userID uuid.UUID) (*Insurer, error) {
	return r.findOne(ctx, bson.M{"userId": userID.String()})
}

func (r *insurerRepoMongo) update(ctx context.Context, id uuid.UUID, set bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, byID(id), bson.M{"$set": set})
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *insurerRepoMongo) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return r.update(ctx, id, bson.M{"verified": verified})
}

func (r *insurerRepoMongo) UpdatePlans(ctx context.Context, id uuid.UUID, plans []PlanTier) error {
	return r.update(ctx, id, bson.M{"plans": plans})
}

func (r *insurerRepoMongo) AddClient(ctx context.Context, insurerID, clientID uuid.UUID) error {
	res, err := r.coll.UpdateOne(ctx, byID(insurerID), bson.M{
		"$addToSet": bson.M{"clients": clientID.String()},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Clients ===========

type clientDoc struct {
	ID         string     `bson:"_id"`
	UserID     string     `bson:"userId"`
	InsurerID  string     `bson:"insurerId"`
	Name       string     `bson:"name"`
	BirthDate  time.Time  `bson:"birthDate"`
	NationalID string     `bson:"nationalId"`
	Job        string     `bson:"job"`
	Health     Health     `bson:"health"`
	Plan       ClientPlan `bson:"plan"`
	CreatedAt  time.Time  `bson:"createdAt"`
}

func (d *clientDoc) model() (*Client, error) {
	id, err := parseDocID("client id", d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := parseDocID("client user id", d.UserID)
	if err != nil {
		return nil, err
	}
	insurerID, err := parseDocID("client insurer id", d.InsurerID)
	if err != nil {
		return nil, err
	}
	return &Client{
		ID: id, UserID: userID, InsurerID: insurerID, Name: d.Name, BirthDate: d.BirthDate,
		NationalID: d.NationalID, Job: d.Job, Health: d.Health, Plan: d.Plan, CreatedAt: d.CreatedAt,
	}, nil
}

type clientRepoMongo struct{ coll *mongo.Collection }

func (r *clientRepoMongo) Create(ctx context.Context, c *Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()
	doc := clientDoc{
		ID: c.ID.String(), UserID: c.UserID.String(), InsurerID: c.InsurerID.String(),
		Name: c.Name, BirthDate: c.BirthDate, NationalID: c.NationalID, Job: c.Job,
		Health: c.Health, Plan: c.Plan, CreatedAt: c.CreatedAt,
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return mapMongoError(err)
}

func (r *clientRepoMongo) findOne(ctx context.Context, filter bson.M) (*Client, error) {
	var doc clientDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.model()
}

func (r *clientRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	return r.findOne(ctx, byID(id))
}

func (r *clientRepoMongo) GetByUserID(ctx context.Context, userID uuid.UUID) (*Client, error) {
	return r.findOne(ctx, bson.M{"userId": userID.String()})
}

func (r *clientRepoMongo) ExistsByNationalID(ctx context.Context, nationalID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"nationalId": nationalID}, options.Count().SetLimit(1))
	return n > 0, err
}

func (r *clientRepoMongo) ListByInsurer(ctx context.Context, insurerID uuid.UUID) ([]*Client, error) {
	cur, err := r.coll.Find(ctx, bson.M{"insurerId": insurerID.String()},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []clientDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Client, 0, len(docs))
	for i := range docs {
		c, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, nil
}

// =========== Doctors ===========

type doctorDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	FullName  string    `bson:"fullName"`
	Specialty *string   `bson:"specialty,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (d *doctorDoc) model() (*Doctor, error) {
	id, err := parseDocID("doctor id", d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := parseDocID("doctor user id", d.UserID)
	if err != nil {
		return nil, err
	}
	return &Doctor{ID: id, UserID: userID, FullName: d.FullName, Specialty: d.Specialty, CreatedAt: d.CreatedAt}, nil
}

type doctorRepoMongo struct{ coll *mongo.Collection }

func (r *doctorRepoMongo) Create(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	doc := doctorDoc{ID: d.ID.String(), UserID: d.UserID.String(), FullName: d.FullName, Specialty: d.Specialty, CreatedAt: d.CreatedAt}
	_, err := r.coll.InsertOne(ctx, doc)
	return mapMongoError(err)
}

func (r *doctorRepoMongo) findOne(ctx context.Context, filter bson.M) (*Doctor, error) {
	var doc doctorDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.model()
}

func (r *doctorRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return r.findOne(ctx, byID(id))
}

func (r *doctorRepoMongo) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return r.findOne(ctx, bson.M{"userId": userID.String()})
}

// =========== Medical bulletins ===========

type bulletinDoc struct {
	ID        string    `bson:"_id"`
	DoctorID  string    `bson:"doctorId"`
	ClientID  string    `bson:"clientId"`
	Treatment Treatment `bson:"treatmentDetails"`
	Financial Financial `bson:"financialInfo"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (d *bulletinDoc) model() (*MedicalBulletin, error) {
	id, err := parseDocID("bulletin id", d.ID)
	if err != nil {
		return nil, err
	}
	doctorID, err := parseDocID("bulletin doctor id", d.DoctorID)
	if err != nil {
		return nil, err
	}
	clientID, err := parseDocID("bulletin client id", d.ClientID)
	if err != nil {
		return nil, err
	}
	return &MedicalBulletin{
		ID: id, DoctorID: doctorID, ClientID: clientID,
		Treatment: d.Treatment, Financial: d.Financial, CreatedAt: d.CreatedAt,
	}, nil
}

type bulletinRepoMongo struct{ coll *mongo.Collection }

func (r *bulletinRepoMongo) Create(ctx context.Context, b *MedicalBulletin) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now().UTC()
	doc := bulletinDoc{
		ID: b.ID.String(), DoctorID: b.DoctorID.String(), ClientID: b.ClientID.String(),
		Treatment: b.Treatment, Financial: b.Financial, CreatedAt: b.CreatedAt,
	}
	_, err := r.coll.InsertOne(ctx, doc)
	return mapMongoError(err)
}

func (r *bulletinRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*MedicalBulletin, error) {
	var doc bulletinDoc
	if err := r.coll.FindOne(ctx, byID(id)).Decode(&doc); err != nil {
		return nil, mapMongoError(err)
	}
	return doc.model()
}

func (r *bulletinRepoMongo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*MedicalBulletin, error) {
	return r.list(ctx, bson.M{"clientId": clientID.String()})
}

func (r *bulletinRepoMongo) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*MedicalBulletin, error) {
	return r.list(ctx, bson.M{"doctorId": doctorID.String()})
}

func (r *bulletinRepoMongo) list(ctx context.Context, filter bson.M) ([]*MedicalBulletin, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []bulletinDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*MedicalBulletin, 0, len(docs))
	for i := range docs {
		b, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}
