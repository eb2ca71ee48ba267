package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/databases/mocks"
	"github.com/pawsaarthi/rescue-api/models"
)

func TestRescueDatabase_FindByID(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srHelper := &mocks.SingleResultHelper{}

	srHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.RescueCase)
		arg.ID = "c1"
		arg.Status = models.StatusReported
	})
	collectionHelper.On("FindOne", context.Background(), bson.M{"_id": "c1"}).Return(srHelper)
	dbHelper.On("Collection", "rescuerequests").Return(collectionHelper)

	rescue, err := databases.NewRescueDatabase(dbHelper).FindByID(context.Background(), "c1")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusReported, rescue.Status)
}

func TestRescueDatabase_ReplaceBumpsVersion(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("ReplaceOne", context.Background(), bson.M{"_id": "c1", "__v": int64(3)}, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	dbHelper.On("Collection", "rescuerequests").Return(collectionHelper)

	c := &models.RescueCase{ID: "c1", Version: 3}
	err := databases.NewRescueDatabase(dbHelper).Replace(context.Background(), c)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), c.Version)

	replacement := collectionHelper.Calls[0].Arguments.Get(2).(models.RescueCase)
	assert.Equal(t, int64(4), replacement.Version)
}

func TestRescueDatabase_ReplaceConflict(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	srHelper := &mocks.SingleResultHelper{}

	srHelper.On("Decode", mock.Anything).Return(nil)
	collectionHelper.On("ReplaceOne", context.Background(), bson.M{"_id": "c1", "__v": int64(1)}, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	collectionHelper.On("FindOne", context.Background(), bson.M{"_id": "c1"}).Return(srHelper)
	dbHelper.On("Collection", "rescuerequests").Return(collectionHelper)

	c := &models.RescueCase{ID: "c1", Version: 1}
	err := databases.NewRescueDatabase(dbHelper).Replace(context.Background(), c)
	assert.True(t, errors.Is(err, databases.ErrVersionConflict))
	assert.Equal(t, int64(1), c.Version)
}

func TestRescueDatabase_FindEscalationCandidates(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*[]models.RescueCase)
		*arg = []models.RescueCase{{ID: "c1"}, {ID: "c2"}}
	})
	collectionHelper.On("Find", context.Background(), bson.M{"status": models.StatusReported}, mock.Anything).
		Return(cursor)
	dbHelper.On("Collection", "rescuerequests").Return(collectionHelper)

	rescues, err := databases.NewRescueDatabase(dbHelper).Find(context.Background(), databases.CaseQuery{
		Statuses: []models.CaseStatus{models.StatusReported},
	})
	assert.NoError(t, err)
	assert.Len(t, rescues, 2)
}

func TestRescueDatabase_DeleteMissing(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("DeleteOne", context.Background(), bson.M{"_id": "gone"}).
		Return(&mongo.DeleteResult{DeletedCount: 0}, nil)
	dbHelper.On("Collection", "rescuerequests").Return(collectionHelper)

	err := databases.NewRescueDatabase(dbHelper).Delete(context.Background(), "gone")
	assert.True(t, errors.Is(err, databases.ErrNotFound))
}

func TestRescueDatabase_FindPaged(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("Decode", mock.Anything).Return(nil)
	collectionHelper.On("Find", context.Background(), bson.M{}, mock.Anything).Return(cursor)
	dbHelper.On("Collection", "rescuerequests").Return(collectionHelper)

	_, err := databases.NewRescueDatabase(dbHelper).Find(context.Background(), databases.CaseQuery{
		Sort:  databases.SortCreatedDesc,
		Limit: 2,
		Page:  3,
	})
	assert.NoError(t, err)

	opts := collectionHelper.Calls[0].Arguments.Get(2).(*options.FindOptions)
	assert.Equal(t, int64(2), *opts.Limit)
	assert.Equal(t, int64(4), *opts.Skip)
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, opts.Sort)
}

func TestRescueDatabase_Count(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("CountDocuments", context.Background(), bson.M{"status": models.StatusCompleted}).
		Return(int64(7), nil)
	dbHelper.On("Collection", "rescuerequests").Return(collectionHelper)

	n, err := databases.NewRescueDatabase(dbHelper).Count(context.Background(), databases.CaseQuery{
		Statuses: []models.CaseStatus{models.StatusCompleted},
		Limit:    2,
		Page:     2,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name        string
		limit, page int64
		want        []int
	}{
		{"no limit", 0, 3, []int{1, 2, 3, 4, 5}},
		{"first page", 2, 1, []int{1, 2}},
		{"page below one is the first", 2, 0, []int{1, 2}},
		{"last partial page", 2, 3, []int{5}},
		{"past the end", 2, 4, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, databases.Paginate(items, tt.limit, tt.page))
		})
	}
}
