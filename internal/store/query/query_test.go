package query

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dropDatabas3/docstore/internal/domain/entity"
	"github.com/dropDatabas3/docstore/internal/domain/repository"
)

type tag struct {
	Name  string `bson:"name"`
	Score int    `bson:"score"`
}

type doc struct {
	entity.Base `bson:",inline"`
	Title       string         `bson:"title"`
	Count       int64          `bson:"count"`
	Tags        []tag          `bson:"tags"`
	Labels      []string       `bson:"labels"`
	Meta        map[string]any `bson:"meta"`
	Owner       *tag           `bson:"owner,omitempty"`
	Secret      string         `bson:"-"`
	Plain       string
	Raw         []byte `bson:"raw"`
}

func newQ() Query[*doc] { return New[*doc]() }

func TestFilter_EmptyIsMatchAll(t *testing.T) {
	q := newQ()
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{}, q.Filter())
	assert.False(t, q.HasFilter())

	q = q.Where(All())
	assert.Equal(t, bson.D{}, q.Filter())
}

func TestFilter_EqAndComposition(t *testing.T) {
	q := newQ().Eq("title", "a").In("count", []int64{1, 2})
	require.NoError(t, q.Err())

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "title", Value: bson.D{{Key: "$eq", Value: "a"}}}},
		bson.D{{Key: "count", Value: bson.D{{Key: "$in", Value: bson.A{int64(1), int64(2)}}}}},
	}}}
	assert.Equal(t, want, q.Filter())
}

func TestFilter_InlineBaseFields(t *testing.T) {
	id := primitive.NewObjectID()
	q := newQ().Eq("_id", id).Eq("state", entity.StateArchived).Where(Exists("updateTime", false))
	require.NoError(t, q.Err())
	assert.Len(t, q.Filter()[0].Value, 3)
}

func TestFilter_DefaultLowercaseName(t *testing.T) {
	q := newQ().Eq("plain", "x")
	require.NoError(t, q.Err())

	q = newQ().Eq("Plain", "x")
	require.Error(t, q.Err())
}

func TestFilter_UnknownFieldFailsAtBuild(t *testing.T) {
	cases := []Query[*doc]{
		newQ().Eq("nope", 1),
		newQ().Eq("secret", "x"),
		newQ().Eq("tags.nope", "x"),
		newQ().Eq("title.sub", "x"),
		newQ().Sort("missing", false),
		newQ().Include("missing"),
		newQ().Set("missing", 1),
		newQ().Eq("", 1),
	}
	for i, q := range cases {
		err := q.Err()
		require.Error(t, err, "case %d", i)
		assert.True(t, repository.IsValidation(err), "case %d", i)
		assert.ErrorIs(t, err, repository.ErrInvalidInput)
	}
}

func TestFilter_TypeMismatchFailsAtBuild(t *testing.T) {
	assert.Error(t, newQ().Eq("title", 3).Err())
	assert.Error(t, newQ().Eq("count", "3").Err())
	assert.Error(t, newQ().In("title", "not-a-slice").Err())
	assert.Error(t, newQ().Set("createTime", "yesterday").Err())

	// numéricos y tipos nombrados se aceptan
	assert.NoError(t, newQ().Eq("count", 3).Err())
	assert.NoError(t, newQ().Eq("state", "Archived").Err())
	assert.NoError(t, newQ().Eq("createTime", time.Now()).Err())
}

func TestFilter_NestedAndArrayPaths(t *testing.T) {
	q := newQ().
		Eq("tags.name", "go").
		Eq("tags.0.score", 3).
		Eq("labels", "x").
		Eq("meta.anything.deep", 1).
		Eq("owner.name", "me")
	require.NoError(t, q.Err())
	assert.Len(t, q.Filter()[0].Value, 5)
}

func TestFilter_ErrorIsSticky(t *testing.T) {
	q := newQ().Eq("nope", 1)
	first := q.Err()
	q = q.Eq("title", "ok").Sort("", false)
	assert.Same(t, first, q.Err())
}

func TestWhere_OrderIndependent(t *testing.T) {
	a := Eq("title", "a")
	b := Gte("count", 2)

	ab := newQ().Where(a).Where(b).Filter()
	ba := newQ().Where(b).Where(a).Filter()

	require.Len(t, ab, 1)
	require.Len(t, ba, 1)
	assert.ElementsMatch(t, ab[0].Value, ba[0].Value)
}

func TestCond_OrNor(t *testing.T) {
	q := newQ().Where(Or(Eq("title", "a"), Lt("count", 3)))
	require.NoError(t, q.Err())
	assert.Equal(t, "$or", q.Filter()[0].Key)

	q = newQ().Where(Nor(Eq("title", "a")))
	require.NoError(t, q.Err())
	assert.Equal(t, "$nor", q.Filter()[0].Key)

	assert.Error(t, newQ().Where(Or()).Err())
}

func TestCond_AndFlattensMatchAll(t *testing.T) {
	q := newQ().Where(And(All(), Eq("title", "a"), All()))
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "title", Value: bson.D{{Key: "$eq", Value: "a"}}}}, q.Filter())
}

func TestMatch_ElementPredicate(t *testing.T) {
	q := newQ().Match("tags", And(Eq("name", "go"), Gt("score", 1)))
	require.NoError(t, q.Err())

	f := q.Filter()
	require.Equal(t, "tags", f[0].Key)
	inner := f[0].Value.(bson.D)
	assert.Equal(t, "$elemMatch", inner[0].Key)

	q = newQ().Match("labels", Eq("", "x"))
	require.NoError(t, q.Err())

	assert.Error(t, newQ().Match("title", Eq("name", "x")).Err(), "not an array")
	assert.Error(t, newQ().Match("tags", Eq("nope", "x")).Err(), "unknown element field")
	assert.Error(t, newQ().Match("tags", Eq("", "x")).Err(), "document element needs a field")
}

func TestSort_DefaultAndCompound(t *testing.T) {
	q := newQ().Sort("", false)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, q.SortDoc())

	q = newQ().Sort("count", true).Sort("title", false)
	assert.Equal(t, bson.D{{Key: "count", Value: -1}, {Key: "title", Value: 1}}, q.SortDoc())
	assert.True(t, q.HasSort())

	assert.Error(t, newQ().Sort("title", false).Sort("title", true).Err())
}

func TestPagination(t *testing.T) {
	q := newQ().Skip(5).Limit(10)
	require.NoError(t, q.Err())
	assert.Equal(t, int64(5), *q.SkipN())
	assert.Equal(t, int64(10), *q.LimitN())

	assert.Error(t, newQ().Skip(-1).Err())
	assert.Error(t, newQ().Limit(-1).Err())
}

func TestProjection(t *testing.T) {
	q := newQ().Include("title", "count").Exclude("_id")
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "title", Value: 1}, {Key: "count", Value: 1}, {Key: "_id", Value: 0}}, q.Projection())

	q = newQ().Exclude("tags").Exclude("tags", "labels")
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "tags", Value: 0}, {Key: "labels", Value: 0}}, q.Projection())

	err := newQ().Include("title").Exclude("count").Err()
	require.Error(t, err)
	assert.True(t, repository.IsValidation(err))
	assert.Error(t, newQ().Exclude("count").Include("title").Err())
}

func TestProjectionWith_Defaults(t *testing.T) {
	def := newQ().Exclude("tags", "labels")

	// sin proyección propia → default
	assert.Equal(t, def.Projection(), newQ().ProjectionWith(def))

	// excludes se suman
	got := newQ().Exclude("raw", "tags").ProjectionWith(def)
	assert.Equal(t, bson.D{{Key: "tags", Value: 0}, {Key: "labels", Value: 0}, {Key: "raw", Value: 0}}, got)

	// includes explícitos ganan
	got = newQ().Include("tags").ProjectionWith(def)
	assert.Equal(t, bson.D{{Key: "tags", Value: 1}}, got)

	// opt-out
	assert.Nil(t, newQ().WithoutDefaultProjection().ProjectionWith(def))
}

func TestUpdate_ComposesAdditively(t *testing.T) {
	now := time.Now()
	q := newQ().
		Set("title", "x").
		Set("updateTime", now).
		AddToSet("labels", "a").
		Push("tags", tag{Name: "go"}).
		PullWhere("tags.", Cond{})
	// path inválido "tags." no rompe lo anterior sino que marca error
	require.Error(t, q.Err())

	q = newQ().
		Set("title", "x").
		Set("updateTime", now).
		AddToSet("labels", "a").
		Push("tags", tag{Name: "go"})
	require.NoError(t, q.Err())

	want := bson.D{
		{Key: "$set", Value: bson.D{{Key: "title", Value: "x"}, {Key: "updateTime", Value: now}}},
		{Key: "$addToSet", Value: bson.D{{Key: "labels", Value: "a"}}},
		{Key: "$push", Value: bson.D{{Key: "tags", Value: tag{Name: "go"}}}},
	}
	assert.Equal(t, want, q.Update())
}

func TestUpdate_SetLastWriteWins(t *testing.T) {
	q := newQ().Set("title", "a").Set("count", 1).Set("title", "b")
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "title", Value: "b"}, {Key: "count", Value: 1}}}}, q.Update())
}

func TestUpdate_ArrayOperators(t *testing.T) {
	q := newQ().AddToSetEach("labels", []string{"a", "b"}).AddToSet("labels", "c")
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "$addToSet", Value: bson.D{
		{Key: "labels", Value: bson.D{{Key: "$each", Value: bson.A{"a", "b", "c"}}}},
	}}}, q.Update())

	q = newQ().Pull("labels", "a").PullAll("labels", []string{"b"})
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "$pullAll", Value: bson.D{{Key: "labels", Value: bson.A{"a", "b"}}}}}, q.Update())

	q = newQ().PullWhere("tags", Eq("name", "go"))
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "$pull", Value: bson.D{
		{Key: "tags", Value: bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "go"}}}}},
	}}}, q.Update())
}

func TestUpdate_Validation(t *testing.T) {
	assert.Error(t, newQ().Push("title", "x").Err(), "not an array")
	assert.Error(t, newQ().AddToSet("labels", 3).Err(), "element type")
	assert.Error(t, newQ().Push("tags", "x").Err(), "element type")
	assert.Error(t, newQ().AddToSetEach("labels", "x").Err(), "not a slice")
	assert.Error(t, newQ().PullWhere("tags", Eq("nope", 1)).Err())
	assert.Error(t, newQ().Set("labels", []string{}).Push("labels", "x").Err(), "conflict")
	assert.Error(t, newQ().Set("tags.0.name", "x").Pull("tags", tag{}).Err(), "prefix conflict")
	assert.Error(t, newQ().PullWhere("tags", Eq("name", "a")).PullWhere("tags", Eq("name", "b")).Err())
}

func TestImmutable_BranchesDoNotAlias(t *testing.T) {
	base := newQ().Eq("title", "a").Sort("count", false).Set("title", "x")

	left := base.Eq("count", 1).Sort("_id", false).Set("count", 1).Include("title")
	right := base.Eq("count", 2).Sort("title", true).Push("labels", "z")

	require.NoError(t, left.Err())
	require.NoError(t, right.Err())

	// la base no cambia
	assert.Len(t, base.Filter(), 1)
	assert.Equal(t, bson.D{{Key: "count", Value: 1}}, base.SortDoc())
	assert.Len(t, base.Update(), 1)
	assert.Nil(t, base.Projection())

	assert.Equal(t, bson.D{{Key: "count", Value: 1}, {Key: "_id", Value: 1}}, left.SortDoc())
	assert.Equal(t, bson.D{{Key: "count", Value: 1}, {Key: "title", Value: -1}}, right.SortDoc())
	assert.NotEqual(t, left.Filter(), right.Filter())
}

func TestImmutable_ConcurrentBranches(t *testing.T) {
	base := newQ().Eq("title", "a").Sort("count", false)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := base.Eq("count", i).Set("count", i)
			assert.NoError(t, q.Err())
			assert.Len(t, q.Filter()[0].Value, 2)
		}(i)
	}
	wg.Wait()
	assert.Len(t, base.Filter(), 1)
}

func TestUpdate_Inc(t *testing.T) {
	q := newQ().Inc("count", 1).Inc("count", 2).Inc("owner.score", -1)
	require.NoError(t, q.Err())
	assert.Equal(t, bson.D{{Key: "$inc", Value: bson.D{
		{Key: "count", Value: int64(3)},
		{Key: "owner.score", Value: int64(-1)},
	}}}, q.Update())

	err := newQ().Inc("title", 1).Err()
	require.Error(t, err)
	assert.True(t, repository.IsValidation(err))

	err = newQ().Set("count", int64(1)).Inc("count", 1).Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicts with $set")
}
