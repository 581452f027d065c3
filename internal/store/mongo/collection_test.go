package mongo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"github.com/dropDatabas3/docstore/internal/domain/entity"
	"github.com/dropDatabas3/docstore/internal/domain/repository"
	"github.com/dropDatabas3/docstore/internal/store/mongo"
	"github.com/dropDatabas3/docstore/internal/store/query"
)

// Los casos corren contra el deployment mock del driver: no hace falta servidor,
// se verifica el comando enviado y el mapeo de la respuesta.
func TestDriverCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	ns := func(mt *mtest.T) string { return mt.Coll.Database().Name() + "." + mt.Coll.Name() }

	mt.Run("find sends sort skip limit and projection", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: id}, {Key: "name", Value: "a"}, {Key: "rank", Value: 1}}))

		skip, limit := int64(2), int64(5)
		coll := mongo.WrapCollection(mt.Coll)
		cur, err := coll.Find(ctx, bson.D{{Key: "name", Value: "a"}}, mongo.FindOptions{
			Sort:       bson.D{{Key: "rank", Value: 1}},
			Skip:       &skip,
			Limit:      &limit,
			Projection: bson.D{{Key: "secret", Value: 0}},
		})
		require.NoError(mt, err)
		var out []widget
		require.NoError(mt, cur.All(ctx, &out))
		require.Len(mt, out, 1)
		assert.Equal(mt, id, out[0].ID)
		assert.Equal(mt, "a", out[0].Name)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "find", evt.CommandName)
		assert.Equal(mt, mt.Coll.Name(), evt.Command.Lookup("find").StringValue())
		assert.Equal(mt, "a", evt.Command.Lookup("filter", "name").StringValue())
		assert.Equal(mt, int64(1), evt.Command.Lookup("sort", "rank").AsInt64())
		assert.Equal(mt, int64(2), evt.Command.Lookup("skip").AsInt64())
		assert.Equal(mt, int64(5), evt.Command.Lookup("limit").AsInt64())
		assert.Equal(mt, int64(0), evt.Command.Lookup("projection", "secret").AsInt64())
	})

	mt.Run("find without options sends only the filter", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		cur, err := mongo.WrapCollection(mt.Coll).Find(ctx, bson.D{}, mongo.FindOptions{})
		require.NoError(mt, err)
		var out []widget
		require.NoError(mt, cur.All(ctx, &out))
		assert.Empty(mt, out)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		for _, key := range []string{"sort", "skip", "limit", "projection"} {
			_, err := evt.Command.LookupErr(key)
			assert.Error(mt, err, key)
		}
	})

	mt.Run("count runs a limited aggregate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: int32(2)}}))

		n, err := mongo.WrapCollection(mt.Coll).CountDocuments(ctx, bson.D{{Key: "state", Value: "Active"}}, 5)
		require.NoError(mt, err)
		assert.Equal(mt, int64(2), n)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "aggregate", evt.CommandName)
		assert.Equal(mt, "Active", evt.Command.Lookup("pipeline", "0", "$match", "state").StringValue())
		assert.Equal(mt, int64(5), evt.Command.Lookup("pipeline", "1", "$limit").AsInt64())
	})

	mt.Run("count without limit has no limit stage", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: int32(7)}}))

		n, err := mongo.WrapCollection(mt.Coll).CountDocuments(ctx, bson.D{}, 0)
		require.NoError(mt, err)
		assert.Equal(mt, int64(7), n)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		_, err = evt.Command.LookupErr("pipeline", "1", "$limit")
		assert.Error(mt, err)
	})

	mt.Run("update one maps matched and modified", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		res, err := mongo.WrapCollection(mt.Coll).UpdateOne(ctx,
			bson.D{{Key: "name", Value: "a"}},
			bson.D{{Key: "$set", Value: bson.D{{Key: "rank", Value: 9}}}})
		require.NoError(mt, err)
		assert.Equal(mt, mongo.UpdateResult{Matched: 1, Modified: 1}, res)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, "a", evt.Command.Lookup("updates", "0", "q", "name").StringValue())
		assert.Equal(mt, int64(9), evt.Command.Lookup("updates", "0", "u", "$set", "rank").AsInt64())
		_, err = evt.Command.LookupErr("updates", "0", "multi")
		assert.Error(mt, err)
	})

	mt.Run("update many sets multi", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 3}, bson.E{Key: "nModified", Value: 2}))

		res, err := mongo.WrapCollection(mt.Coll).UpdateMany(ctx, bson.D{},
			bson.D{{Key: "$set", Value: bson.D{{Key: "state", Value: "Archived"}}}})
		require.NoError(mt, err)
		assert.Equal(mt, mongo.UpdateResult{Matched: 3, Modified: 2}, res)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.True(mt, evt.Command.Lookup("updates", "0", "multi").Boolean())
	})

	mt.Run("update failure maps to zero result", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Name: "BadValue", Message: "bad update",
		}))

		res, err := mongo.WrapCollection(mt.Coll).UpdateOne(ctx, bson.D{},
			bson.D{{Key: "$set", Value: bson.D{{Key: "rank", Value: 1}}}})
		require.Error(mt, err)
		assert.Equal(mt, mongo.UpdateResult{}, res)
	})

	mt.Run("replace sends the whole document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}))

		res, err := mongo.WrapCollection(mt.Coll).ReplaceOne(ctx,
			bson.D{{Key: "name", Value: "a"}}, bson.D{{Key: "name", Value: "b"}})
		require.NoError(mt, err)
		assert.Equal(mt, mongo.UpdateResult{Matched: 1}, res)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "b", evt.Command.Lookup("updates", "0", "u", "name").StringValue())
	})

	mt.Run("delete maps deleted count", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}),
		)
		coll := mongo.WrapCollection(mt.Coll)

		n, err := coll.DeleteOne(ctx, bson.D{{Key: "name", Value: "a"}})
		require.NoError(mt, err)
		assert.Equal(mt, int64(1), n)

		n, err = coll.DeleteMany(ctx, bson.D{})
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), n)

		events := mt.GetAllStartedEvents()
		require.Len(mt, events, 2)
		assert.Equal(mt, "delete", events[0].CommandName)
		assert.Equal(mt, int32(1), events[0].Command.Lookup("deletes", "0", "limit").Int32())
		assert.Equal(mt, int32(0), events[1].Command.Lookup("deletes", "0", "limit").Int32())
	})

	mt.Run("ensure index sends name keys and unique", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := mongo.WrapCollection(mt.Coll).EnsureIndex(ctx, mongo.Index{
			Name:   "normalizedName_1",
			Keys:   bson.D{{Key: "normalizedName", Value: 1}},
			Unique: true,
		})
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "createIndexes", evt.CommandName)
		assert.Equal(mt, "normalizedName_1", evt.Command.Lookup("indexes", "0", "name").StringValue())
		assert.True(mt, evt.Command.Lookup("indexes", "0", "unique").Boolean())
		assert.Equal(mt, int64(1), evt.Command.Lookup("indexes", "0", "key", "normalizedName").AsInt64())
	})

	mt.Run("repository reads through the driver", func(mt *mtest.T) {
		created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: primitive.NewObjectID()},
				{Key: "createTime", Value: created},
				{Key: "state", Value: "Active"},
				{Key: "name", Value: "b"},
				{Key: "rank", Value: 2},
			}))

		r := mongo.NewRepository[*widget](mongo.WrapCollection(mt.Coll), mongo.WithLogger(zap.NewNop()))
		got, err := r.GetSortedPage(ctx, query.All(), "rank", true, 1, 1)
		require.NoError(mt, err)
		require.Len(mt, got, 1)
		assert.Equal(mt, "b", got[0].Name)
		assert.Equal(mt, entity.StateActive, got[0].State)
		assert.True(mt, got[0].CreateTime.Equal(created))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, int64(-1), evt.Command.Lookup("sort", "rank").AsInt64())
		assert.Equal(mt, int64(1), evt.Command.Lookup("skip").AsInt64())
		assert.Equal(mt, int64(1), evt.Command.Lookup("limit").AsInt64())
	})

	mt.Run("repository zero limit page skips the driver", func(mt *mtest.T) {
		r := mongo.NewRepository[*widget](mongo.WrapCollection(mt.Coll), mongo.WithLogger(zap.NewNop()))
		got, err := r.GetSortedPage(ctx, query.All(), "rank", false, 0, 0)
		require.NoError(mt, err)
		assert.Empty(mt, got)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("repository maps duplicate key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error",
		}))

		r := mongo.NewRepository[*widget](mongo.WrapCollection(mt.Coll), mongo.WithLogger(zap.NewNop()))
		_, err := r.Insert(ctx, &widget{Name: "a"})
		require.Error(mt, err)
		assert.True(mt, repository.IsStore(err))
		assert.True(mt, repository.IsDuplicateKey(err))
		assert.True(mt, repository.IsConflict(err))
	})
}

func TestOpen_RequiresURIAndDatabase(t *testing.T) {
	ctx := context.Background()

	_, err := mongo.Open(ctx, mongo.Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrNoDatabase))

	_, err = mongo.Open(ctx, mongo.Config{URI: "mongodb://localhost:27017"})
	assert.True(t, repository.IsNoDatabase(err))
}
