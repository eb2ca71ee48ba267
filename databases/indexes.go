package databases

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		userName: {
			{Keys: bson.D{{Key: "user.email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user.role", Value: 1}, {Key: "user.isApproved", Value: 1}}},
			{Keys: bson.D{{Key: "user.linkedHospital", Value: 1}}},
		},
		rescueName: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "assignedNGO", Value: 1}}},
			{Keys: bson.D{{Key: "assignedHospital", Value: 1}}},
			{Keys: bson.D{{Key: "assignedAmbulance", Value: 1}, {Key: "status", Value: 1}}},
		},
		ledgerName: {
			{Keys: bson.D{{Key: "idempotencyKey", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		notificationName: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
}
