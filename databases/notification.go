package databases

// go generate: mockery --name NotificationDatabase

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawsaarthi/rescue-api/models"
)

const notificationName = "notifications"

// NotificationDatabase contains the methods to use with the notification database
type NotificationDatabase interface {
	Insert(ctx context.Context, n *models.Notification) error
	FindByRecipient(ctx context.Context, recipient string, limit int64) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipient string) error
}

type notificationDatabase struct {
	db DatabaseHelper
}

// NewNotificationDatabase initializes a new instance of notification database with the provided db connection
func NewNotificationDatabase(db DatabaseHelper) NotificationDatabase {
	return &notificationDatabase{
		db: db,
	}
}

func (n *notificationDatabase) Insert(ctx context.Context, notification *models.Notification) error {
	_, err := n.db.Collection(notificationName).InsertOne(ctx, notification)
	return err
}

func (n *notificationDatabase) FindByRecipient(ctx context.Context, recipient string, limit int64) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	var notifications []models.Notification
	if err := n.db.Collection(notificationName).Find(ctx, bson.M{"recipient": recipient}, opts).Decode(&notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (n *notificationDatabase) MarkRead(ctx context.Context, id, recipient string) error {
	res, err := n.db.Collection(notificationName).UpdateOne(ctx,
		bson.M{"_id": id, "recipient": recipient},
		bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
