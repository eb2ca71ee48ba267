package databases

// go generate: mockery --name UserDatabase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawsaarthi/rescue-api/models"
)

const userName = "users"

// UserDatabase contains the methods to use with the user database
type UserDatabase interface {
	Insert(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Find(ctx context.Context, q UserQuery) ([]models.User, error)
	UpdateProfile(ctx context.Context, id string, p models.ProfileUpdate) (*models.User, error)
	SetApproved(ctx context.Context, id string, approved bool) (*models.User, error)
	// AdjustBalance adds delta to the cached wallet balance and returns the
	// new balance. It fails with ErrInsufficientFunds rather than go negative.
	AdjustBalance(ctx context.Context, id string, delta int64) (int64, error)
	// ClaimCarrier flips an available carrier to unavailable, or fails with
	// ErrCarrierUnavailable.
	ClaimCarrier(ctx context.Context, id string) error
	ReleaseCarrier(ctx context.Context, id string) error
}

type userDatabase struct {
	db DatabaseHelper
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db DatabaseHelper) UserDatabase {
	return &userDatabase{
		db: db,
	}
}

func (u *userDatabase) Insert(ctx context.Context, user *models.User) error {
	user.Details.Email = strings.ToLower(user.Details.Email)
	if _, err := u.db.Collection(userName).InsertOne(ctx, user); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("user %s: %w", user.Details.Email, ErrDuplicate)
		}
		return err
	}
	return nil
}

func (u *userDatabase) FindByID(ctx context.Context, id string) (*models.User, error) {
	return u.findOne(ctx, bson.M{"_id": id})
}

func (u *userDatabase) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return u.findOne(ctx, bson.M{"user.email": strings.ToLower(email)})
}

func (u *userDatabase) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	user := &models.User{}
	if err := u.db.Collection(userName).FindOne(ctx, filter).Decode(user); err != nil {
		return nil, fmt.Errorf("user %v: %w", filter, err)
	}
	return user, nil
}

func (u *userDatabase) Find(ctx context.Context, q UserQuery) ([]models.User, error) {
	filter := bson.M{}
	if q.Role != models.RoleUnknown {
		filter["user.role"] = q.Role.String()
	}
	if q.Approved != nil {
		filter["user.isApproved"] = *q.Approved
	}
	if q.LinkedFacility != "" {
		filter["user.linkedHospital"] = q.LinkedFacility
	}
	opts := options.Find().SetSort(bson.D{{Key: "user.createdAt", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	var users []models.User
	if err := u.db.Collection(userName).Find(ctx, filter, opts).Decode(&users); err != nil {
		return nil, err
	}
	return users, nil
}

func (u *userDatabase) UpdateProfile(ctx context.Context, id string, p models.ProfileUpdate) (*models.User, error) {
	set := bson.M{"user.updatedAt": time.Now().UTC()}
	if p.Name != nil {
		set["user.name"] = *p.Name
	}
	if p.Phone != nil {
		set["user.phone"] = *p.Phone
	}
	if p.HomeLocation != nil {
		set["user.location"] = *p.HomeLocation
	}
	if p.OrgName != nil {
		set["user.orgName"] = *p.OrgName
	}
	if p.Address != nil {
		set["user.address"] = *p.Address
	}
	if p.VehicleNumber != nil {
		set["user.vehicleNumber"] = *p.VehicleNumber
	}
	if p.Capacity != nil {
		set["user.capacity"] = *p.Capacity
	}
	return u.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set, "$inc": bson.M{"__v": 1}})
}

func (u *userDatabase) SetApproved(ctx context.Context, id string, approved bool) (*models.User, error) {
	update := bson.M{"$set": bson.M{"user.isApproved": approved, "user.updatedAt": time.Now().UTC()}}
	return u.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
}

func (u *userDatabase) AdjustBalance(ctx context.Context, id string, delta int64) (int64, error) {
	filter := bson.M{"_id": id}
	if delta < 0 {
		filter["user.walletBalance"] = bson.M{"$gte": -delta}
	}
	user, err := u.findOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"user.walletBalance": delta}})
	if errors.Is(err, ErrNotFound) && delta < 0 {
		if _, ferr := u.FindByID(ctx, id); ferr != nil {
			return 0, ferr
		}
		return 0, fmt.Errorf("user %s: %w", id, ErrInsufficientFunds)
	}
	if err != nil {
		return 0, err
	}
	return user.Details.WalletBalance, nil
}

func (u *userDatabase) ClaimCarrier(ctx context.Context, id string) error {
	filter := bson.M{"_id": id, "user.role": models.RoleCarrier.String(), "user.isAvailable": true}
	res, err := u.db.Collection(userName).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"user.isAvailable": false}})
	if err != nil {
		return err
	}
	if res.ModifiedCount == 0 {
		return fmt.Errorf("carrier %s: %w", id, ErrCarrierUnavailable)
	}
	return nil
}

func (u *userDatabase) ReleaseCarrier(ctx context.Context, id string) error {
	res, err := u.db.Collection(userName).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"user.isAvailable": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("carrier %s: %w", id, ErrNotFound)
	}
	return nil
}

func (u *userDatabase) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.User, error) {
	user := &models.User{}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := u.db.Collection(userName).FindOneAndUpdate(ctx, filter, update, opts).Decode(user); err != nil {
		return nil, fmt.Errorf("user %v: %w", filter["_id"], err)
	}
	return user, nil
}
