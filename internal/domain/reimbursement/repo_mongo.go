package reimbursement

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

const collEstimations = "estimations"

// MongoIndexes lists the estimation indexes. The unique index on
// medicalBulletinId backs ErrDuplicateEstimation.
func MongoIndexes() []mongodb.Index {
	return []mongodb.Index{
		{Collection: collEstimations, Keys: bson.D{{Key: "medicalBulletinId", Value: 1}}, Unique: true, Name: "estimations_bulletin_unique"},
		{Collection: collEstimations, Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "createdAt", Value: -1}}, Name: "estimations_client"},
	}
}

type estimationDoc struct {
	ID                  string    `bson:"_id"`
	InsurerID           string    `bson:"insurerId"`
	ClientID            string    `bson:"clientId"`
	MedicalBulletinID   string    `bson:"medicalBulletinId"`
	ClientName          string    `bson:"clientName"`
	ClientEmail         string    `bson:"clientEmail"`
	ReimbursementClass  string    `bson:"reimbursementClass"`
	Confidence          float64   `bson:"confidence"`
	ReimbursementAmount float64   `bson:"reimbursementAmount"`
	ModelVersion        string    `bson:"modelVersion"`
	CreatedBy           string    `bson:"createdBy"`
	CreatedAt           time.Time `bson:"createdAt"`
}

func newEstimationDoc(e *Estimation) estimationDoc {
	return estimationDoc{
		ID:                  e.ID.String(),
		InsurerID:           e.InsurerID.String(),
		ClientID:            e.ClientID.String(),
		MedicalBulletinID:   e.MedicalBulletinID.String(),
		ClientName:          e.ClientName,
		ClientEmail:         e.ClientEmail,
		ReimbursementClass:  e.ReimbursementClass,
		Confidence:          e.Confidence,
		ReimbursementAmount: e.ReimbursementAmount,
		ModelVersion:        e.ModelVersion,
		CreatedBy:           e.CreatedBy.String(),
		CreatedAt:           e.CreatedAt,
	}
}

func (d *estimationDoc) model() (*Estimation, error) {
	ids := make([]uuid.UUID, 5)
	for i, raw := range []string{d.ID, d.InsurerID, d.ClientID, d.MedicalBulletinID, d.CreatedBy} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("estimation %s: stored id %q is not a uuid: %w", d.ID, raw, err)
		}
		ids[i] = id
	}
	return &Estimation{
		ID:                  ids[0],
		InsurerID:           ids[1],
		ClientID:            ids[2],
		MedicalBulletinID:   ids[3],
		ClientName:          d.ClientName,
		ClientEmail:         d.ClientEmail,
		ReimbursementClass:  d.ReimbursementClass,
		Confidence:          d.Confidence,
		ReimbursementAmount: d.ReimbursementAmount,
		ModelVersion:        d.ModelVersion,
		CreatedBy:           ids[4],
		CreatedAt:           d.CreatedAt,
	}, nil
}

type estimationRepoMongo struct{ coll *mongo.Collection }

func NewEstimationRepoMongo(store *mongodb.Store) EstimationRepository {
	return &estimationRepoMongo{coll: store.DB.Collection(collEstimations)}
}

func (r *estimationRepoMongo) Create(ctx context.Context, e *Estimation) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.coll.InsertOne(ctx, newEstimationDoc(e))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEstimation
	}
	return err
}

func (r *estimationRepoMongo) GetByBulletin(ctx context.Context, bulletinID uuid.UUID) (*Estimation, error) {
	var doc estimationDoc
	err := r.coll.FindOne(ctx, bson.M{"medicalBulletinId": bulletinID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEstimationNotFound
		}
		return nil, err
	}
	return doc.model()
}

func (r *estimationRepoMongo) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Estimation, error) {
	cur, err := r.coll.Find(ctx, bson.M{"clientId": clientID.String()},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []estimationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*Estimation, 0, len(docs))
	for i := range docs {
		e, err := docs[i].model()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, nil
}
