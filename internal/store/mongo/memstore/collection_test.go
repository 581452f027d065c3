package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/dropDatabas3/docstore/internal/store/mongo"
)

func seed(t *testing.T, docs ...bson.D) *Collection {
	t.Helper()
	c := New("things")
	for _, d := range docs {
		require.NoError(t, c.InsertOne(context.Background(), d))
	}
	return c
}

func findAll(t *testing.T, c *Collection, filter bson.D, opts mongo.FindOptions) []bson.D {
	t.Helper()
	cur, err := c.Find(context.Background(), filter, opts)
	require.NoError(t, err)
	var out []bson.D
	require.NoError(t, cur.All(context.Background(), &out))
	return out
}

func names(docs []bson.D) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		v, _ := getPath(d, []string{"name"})
		out = append(out, v.(string))
	}
	return out
}

func fixture(t *testing.T) *Collection {
	return seed(t,
		bson.D{{Key: "name", Value: "a"}, {Key: "n", Value: 3}, {Key: "tags", Value: bson.A{"x", "y"}},
			{Key: "roles", Value: bson.A{bson.D{{Key: "name", Value: "ADMIN"}}}}},
		bson.D{{Key: "name", Value: "b"}, {Key: "n", Value: 1}, {Key: "tags", Value: bson.A{"y"}}},
		bson.D{{Key: "name", Value: "c"}, {Key: "n", Value: 2}},
	)
}

func TestFind_Operators(t *testing.T) {
	c := fixture(t)
	cases := []struct {
		filter bson.D
		want   []string
	}{
		{bson.D{}, []string{"a", "b", "c"}},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: 1}}}}, []string{"a", "c"}},
		{bson.D{{Key: "n", Value: bson.D{{Key: "$lte", Value: int64(2)}}}}, []string{"b", "c"}},
		{bson.D{{Key: "tags", Value: "y"}}, []string{"a", "b"}},
		{bson.D{{Key: "tags", Value: bson.D{{Key: "$ne", Value: "x"}}}}, []string{"b", "c"}},
		{bson.D{{Key: "tags", Value: bson.D{{Key: "$exists", Value: false}}}}, []string{"c"}},
		{bson.D{{Key: "name", Value: bson.D{{Key: "$in", Value: bson.A{"a", "c"}}}}}, []string{"a", "c"}},
		{bson.D{{Key: "name", Value: bson.D{{Key: "$nin", Value: bson.A{"a", "c"}}}}}, []string{"b"}},
		{bson.D{{Key: "roles.name", Value: "ADMIN"}}, []string{"a"}},
		{bson.D{{Key: "roles", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "ADMIN"}}}}}}}}, []string{"a"}},
		{bson.D{{Key: "tags", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: "x"}}}}}}, []string{"a"}},
		{bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "name", Value: "b"}},
			bson.D{{Key: "n", Value: 2}},
		}}}, []string{"b", "c"}},
		{bson.D{{Key: "$nor", Value: bson.A{bson.D{{Key: "name", Value: "b"}}}}}, []string{"a", "c"}},
		{bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "n", Value: bson.D{{Key: "$gte", Value: 2}}}},
			bson.D{{Key: "tags", Value: "x"}},
		}}}, []string{"a"}},
	}
	for i, tc := range cases {
		got := names(findAll(t, c, tc.filter, mongo.FindOptions{}))
		assert.Equal(t, tc.want, got, "case %d", i)
	}
}

func TestFind_SortSkipLimitProjection(t *testing.T) {
	c := fixture(t)
	skip, limit := int64(1), int64(1)
	got := findAll(t, c, bson.D{}, mongo.FindOptions{Sort: bson.D{{Key: "n", Value: -1}}})
	assert.Equal(t, []string{"a", "c", "b"}, names(got))

	got = findAll(t, c, bson.D{}, mongo.FindOptions{Sort: bson.D{{Key: "n", Value: 1}}, Skip: &skip, Limit: &limit})
	assert.Equal(t, []string{"c"}, names(got))

	got = findAll(t, c, bson.D{{Key: "name", Value: "a"}}, mongo.FindOptions{Projection: bson.D{{Key: "tags", Value: 0}, {Key: "roles", Value: 0}}})
	require.Len(t, got, 1)
	_, hasTags := getPath(got[0], []string{"tags"})
	assert.False(t, hasTags)
	_, hasN := getPath(got[0], []string{"n"})
	assert.True(t, hasN)

	got = findAll(t, c, bson.D{{Key: "name", Value: "a"}}, mongo.FindOptions{Projection: bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 0}}})
	assert.Equal(t, bson.D{{Key: "name", Value: "a"}}, got[0])
}

func TestUpdate_ArrayOperators(t *testing.T) {
	ctx := context.Background()
	c := fixture(t)
	byName := bson.D{{Key: "name", Value: "a"}}

	res, err := c.UpdateOne(ctx, byName, bson.D{{Key: "$addToSet", Value: bson.D{{Key: "tags", Value: "x"}}}})
	require.NoError(t, err)
	assert.Equal(t, mongo.UpdateResult{Matched: 1, Modified: 0}, res)

	_, err = c.UpdateOne(ctx, byName, bson.D{{Key: "$addToSet", Value: bson.D{{Key: "tags", Value: bson.D{{Key: "$each", Value: bson.A{"z", "x"}}}}}}})
	require.NoError(t, err)
	_, err = c.UpdateOne(ctx, byName, bson.D{{Key: "$pullAll", Value: bson.D{{Key: "tags", Value: bson.A{"y"}}}}})
	require.NoError(t, err)
	_, err = c.UpdateOne(ctx, byName, bson.D{{Key: "$pull", Value: bson.D{{Key: "roles", Value: bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "ADMIN"}}}}}}}})
	require.NoError(t, err)
	_, err = c.UpdateOne(ctx, byName, bson.D{{Key: "$set", Value: bson.D{{Key: "meta.deep", Value: true}}}})
	require.NoError(t, err)

	got := findAll(t, c, byName, mongo.FindOptions{})[0]
	tags, _ := getPath(got, []string{"tags"})
	assert.Equal(t, bson.A{"x", "z"}, tags)
	roles, ok := getPath(got, []string{"roles"})
	require.True(t, ok)
	assert.Len(t, roles, 0)
	deep, _ := getPath(got, []string{"meta", "deep"})
	assert.Equal(t, true, deep)

	// $push sobre un campo inexistente crea el array; sobre un escalar falla
	_, err = c.UpdateOne(ctx, bson.D{{Key: "name", Value: "c"}}, bson.D{{Key: "$push", Value: bson.D{{Key: "tags", Value: "q"}}}})
	require.NoError(t, err)
	_, err = c.UpdateOne(ctx, bson.D{{Key: "name", Value: "c"}}, bson.D{{Key: "$push", Value: bson.D{{Key: "name", Value: "q"}}}})
	require.Error(t, err)
}

func TestUpdateMany_And_Delete(t *testing.T) {
	ctx := context.Background()
	c := fixture(t)

	res, err := c.UpdateMany(ctx, bson.D{{Key: "n", Value: bson.D{{Key: "$gte", Value: 2}}}}, bson.D{{Key: "$set", Value: bson.D{{Key: "state", Value: "Archived"}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Matched)

	n, err := c.CountDocuments(ctx, bson.D{{Key: "state", Value: "Archived"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.CountDocuments(ctx, bson.D{}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	del, err := c.DeleteMany(ctx, bson.D{{Key: "state", Value: "Archived"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), del)
	assert.Equal(t, 1, c.Len())
}

func TestUniqueIndex(t *testing.T) {
	ctx := context.Background()
	c := seed(t, bson.D{{Key: "email", Value: "A@X.COM"}})
	require.NoError(t, c.EnsureIndex(ctx, mongo.Index{Name: "email_1", Keys: bson.D{{Key: "email", Value: 1}}, Unique: true}))

	err := c.InsertOne(ctx, bson.D{{Key: "email", Value: "A@X.COM"}})
	require.Error(t, err)
	assert.True(t, mongodriver.IsDuplicateKeyError(err))
	assert.Equal(t, 1, c.Len())

	err = c.InsertMany(ctx, []any{bson.D{{Key: "email", Value: "B@X.COM"}}, bson.D{{Key: "email", Value: "B@X.COM"}}})
	require.Error(t, err)
	assert.True(t, mongodriver.IsDuplicateKeyError(err))
	assert.Equal(t, 2, c.Len(), "ordered insert keeps the first document")
}

func TestFailNext(t *testing.T) {
	c := New("things")
	boom := errors.New("boom")
	c.FailNext("InsertOne", boom)

	assert.ErrorIs(t, c.InsertOne(context.Background(), bson.D{}), boom)
	assert.NoError(t, c.InsertOne(context.Background(), bson.D{}))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New("things").Find(ctx, bson.D{}, mongo.FindOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdate_Inc(t *testing.T) {
	ctx := context.Background()
	c := fixture(t)

	_, err := c.UpdateOne(ctx, bson.D{{Key: "name", Value: "a"}}, bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int64(2)}, {Key: "hits", Value: int64(1)}}}})
	require.NoError(t, err)
	got := findAll(t, c, bson.D{{Key: "name", Value: "a"}}, mongo.FindOptions{})[0]
	n, _ := getPath(got, []string{"n"})
	assert.Equal(t, int64(5), n)
	hits, _ := getPath(got, []string{"hits"})
	assert.Equal(t, int64(1), hits)

	_, err = c.UpdateOne(ctx, bson.D{{Key: "name", Value: "a"}}, bson.D{{Key: "$inc", Value: bson.D{{Key: "name", Value: int64(1)}}}})
	require.Error(t, err)
}
