package databases

// go generate: mockery --name RescueDatabase

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawsaarthi/rescue-api/models"
)

const rescueName = "rescuerequests"

// RescueDatabase contains the methods to use with the rescue case database
type RescueDatabase interface {
	Insert(ctx context.Context, c *models.RescueCase) error
	FindByID(ctx context.Context, id string) (*models.RescueCase, error)
	Find(ctx context.Context, q CaseQuery) ([]models.RescueCase, error)
	// Count returns how many cases match q, ignoring Limit and Page
	Count(ctx context.Context, q CaseQuery) (int64, error)
	// Replace writes c if the stored version still equals c.Version. On
	// success c.Version is advanced, otherwise ErrVersionConflict is returned.
	Replace(ctx context.Context, c *models.RescueCase) error
	Delete(ctx context.Context, id string) error
}

type rescueDatabase struct {
	db DatabaseHelper
}

// NewRescueDatabase initializes a new instance of rescue database with the provided db connection
func NewRescueDatabase(db DatabaseHelper) RescueDatabase {
	return &rescueDatabase{
		db: db,
	}
}

func (r *rescueDatabase) Insert(ctx context.Context, c *models.RescueCase) error {
	if _, err := r.db.Collection(rescueName).InsertOne(ctx, c); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("rescue %s: %w", c.ID, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *rescueDatabase) FindByID(ctx context.Context, id string) (*models.RescueCase, error) {
	rescue := &models.RescueCase{}
	err := r.db.Collection(rescueName).FindOne(ctx, bson.M{"_id": id}).Decode(rescue)
	if err != nil {
		return nil, fmt.Errorf("rescue %s: %w", id, err)
	}
	return rescue, nil
}

func (r *rescueDatabase) Find(ctx context.Context, q CaseQuery) ([]models.RescueCase, error) {
	var rescues []models.RescueCase
	opts := options.Find()
	if q.Limit > 0 {
		opts = newMongoPaginate(q.Limit, q.Page).getPaginatedOpts()
	}
	opts.SetSort(caseSort(q.Sort))
	err := r.db.Collection(rescueName).Find(ctx, caseFilter(q), opts).Decode(&rescues)
	if err != nil {
		return nil, err
	}
	return rescues, nil
}

func (r *rescueDatabase) Count(ctx context.Context, q CaseQuery) (int64, error) {
	return r.db.Collection(rescueName).CountDocuments(ctx, caseFilter(q))
}

func (r *rescueDatabase) Replace(ctx context.Context, c *models.RescueCase) error {
	next := *c
	next.Version = c.Version + 1
	res, err := r.db.Collection(rescueName).ReplaceOne(ctx, bson.M{"_id": c.ID, "__v": c.Version}, next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, c.ID); err != nil {
			return err
		}
		return fmt.Errorf("rescue %s at version %d: %w", c.ID, c.Version, ErrVersionConflict)
	}
	c.Version = next.Version
	return nil
}

func (r *rescueDatabase) Delete(ctx context.Context, id string) error {
	res, err := r.db.Collection(rescueName).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("rescue %s: %w", id, ErrNotFound)
	}
	return nil
}

func caseFilter(q CaseQuery) bson.M {
	filter := bson.M{}
	if len(q.Statuses) == 1 {
		filter["status"] = q.Statuses[0]
	} else if len(q.Statuses) > 1 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	if q.Reporter != "" {
		filter["user"] = q.Reporter
	}
	if q.AssignedOrg != "" {
		filter["assignedNGO"] = q.AssignedOrg
	}
	if q.AssignedFacility != "" {
		filter["assignedHospital"] = q.AssignedFacility
	}
	if q.AssignedCarrier != "" {
		filter["assignedAmbulance"] = q.AssignedCarrier
	}
	if q.OrgUnassigned {
		filter["assignedNGO"] = nil
	}
	if q.NotRejectedBy != "" {
		filter["rejectedBy"] = bson.M{"$ne": q.NotRejectedBy}
	}
	if q.CreatedBefore != nil {
		filter["createdAt"] = bson.M{"$lte": *q.CreatedBefore}
	}
	if q.RefundOutstanding {
		filter["depositDeducted"] = true
		filter["depositRefunded"] = false
	}
	return filter
}

func caseSort(s CaseSort) bson.D {
	switch s {
	case SortCreatedDesc:
		return bson.D{{Key: "createdAt", Value: -1}}
	case SortEscalatedAsc:
		return bson.D{{Key: "escalatedAt", Value: 1}, {Key: "createdAt", Value: 1}}
	case SortUpdatedDesc:
		return bson.D{{Key: "updatedAt", Value: -1}}
	case SortCompletedDesc:
		return bson.D{{Key: "completedAt", Value: -1}}
	default:
		return bson.D{{Key: "createdAt", Value: 1}}
	}
}
