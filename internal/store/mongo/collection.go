package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FindOptions son las opciones de lectura que el repositorio le pasa a la colección.
// Campos nil/vacíos no se envían.
type FindOptions struct {
	Sort       bson.D
	Skip       *int64
	Limit      *int64
	Projection bson.D
}

// UpdateResult resume un replace/update.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Index describe un índice a asegurar sobre la colección.
type Index struct {
	Name   string
	Keys   bson.D
	Unique bool
}

// Collection es el contrato mínimo de document store que consume Repository.
// Lo implementan WrapCollection (driver real) y memstore.Collection (memoria).
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, doc any) error
	InsertMany(ctx context.Context, docs []any) error
	Find(ctx context.Context, filter bson.D, opts FindOptions) (*mongodriver.Cursor, error)
	// CountDocuments cuenta hasta limit documentos (0 = sin límite).
	CountDocuments(ctx context.Context, filter bson.D, limit int64) (int64, error)
	ReplaceOne(ctx context.Context, filter bson.D, doc any) (UpdateResult, error)
	UpdateOne(ctx context.Context, filter, update bson.D) (UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update bson.D) (UpdateResult, error)
	DeleteOne(ctx context.Context, filter bson.D) (int64, error)
	DeleteMany(ctx context.Context, filter bson.D) (int64, error)
	EnsureIndex(ctx context.Context, idx Index) error
}

type driverCollection struct {
	c *mongodriver.Collection
}

// WrapCollection adapta una colección del driver al contrato Collection.
func WrapCollection(c *mongodriver.Collection) Collection {
	return &driverCollection{c: c}
}

func (d *driverCollection) Name() string { return d.c.Name() }

func (d *driverCollection) InsertOne(ctx context.Context, doc any) error {
	_, err := d.c.InsertOne(ctx, doc)
	return err
}

func (d *driverCollection) InsertMany(ctx context.Context, docs []any) error {
	_, err := d.c.InsertMany(ctx, docs)
	return err
}

func (d *driverCollection) Find(ctx context.Context, filter bson.D, o FindOptions) (*mongodriver.Cursor, error) {
	fo := options.Find()
	if len(o.Sort) > 0 {
		fo.SetSort(o.Sort)
	}
	if o.Skip != nil {
		fo.SetSkip(*o.Skip)
	}
	if o.Limit != nil {
		fo.SetLimit(*o.Limit)
	}
	if len(o.Projection) > 0 {
		fo.SetProjection(o.Projection)
	}
	return d.c.Find(ctx, filter, fo)
}

func (d *driverCollection) CountDocuments(ctx context.Context, filter bson.D, limit int64) (int64, error) {
	co := options.Count()
	if limit > 0 {
		co.SetLimit(limit)
	}
	return d.c.CountDocuments(ctx, filter, co)
}

func (d *driverCollection) ReplaceOne(ctx context.Context, filter bson.D, doc any) (UpdateResult, error) {
	res, err := d.c.ReplaceOne(ctx, filter, doc)
	return toResult(res), err
}

func (d *driverCollection) UpdateOne(ctx context.Context, filter, update bson.D) (UpdateResult, error) {
	res, err := d.c.UpdateOne(ctx, filter, update)
	return toResult(res), err
}

func (d *driverCollection) UpdateMany(ctx context.Context, filter, update bson.D) (UpdateResult, error) {
	res, err := d.c.UpdateMany(ctx, filter, update)
	return toResult(res), err
}

func (d *driverCollection) DeleteOne(ctx context.Context, filter bson.D) (int64, error) {
	res, err := d.c.DeleteOne(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (d *driverCollection) DeleteMany(ctx context.Context, filter bson.D) (int64, error) {
	res, err := d.c.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (d *driverCollection) EnsureIndex(ctx context.Context, idx Index) error {
	io := options.Index().SetUnique(idx.Unique)
	if idx.Name != "" {
		io.SetName(idx.Name)
	}
	_, err := d.c.Indexes().CreateOne(ctx, mongodriver.IndexModel{Keys: idx.Keys, Options: io})
	return err
}

func toResult(res *mongodriver.UpdateResult) UpdateResult {
	if res == nil {
		return UpdateResult{}
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
}
