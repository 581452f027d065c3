// Package memstore provee una colección en memoria que cumple mongo.Collection.
//
// Evalúa el subconjunto de MongoDB que emite el query builder: filtros
// ($eq $ne $gt $gte $lt $lte $in $nin $exists $elemMatch $and $or $nor),
// updates ($set $inc $addToSet $push $pull $pullAll), sort, skip, limit,
// proyecciones e índices únicos. Los documentos se guardan en su forma
// canónica BSON, así las comparaciones siguen las reglas del servidor.
// La usan los tests de los stores y el adapter "memory".
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/dropDatabas3/docstore/internal/store/mongo"
)

// Collection es una colección en memoria, segura para uso concurrente.
type Collection struct {
	name string

	mu      sync.RWMutex
	docs    []bson.D
	indexes []mongo.Index
	fail    map[string]error
}

var _ mongo.Collection = (*Collection)(nil)

// New crea una colección vacía.
func New(name string) *Collection {
	return &Collection{name: name, fail: map[string]error{}}
}

func (c *Collection) Name() string { return c.name }

// FailNext hace que la próxima llamada a op (InsertOne, Find, ReplaceOne...) retorne err.
func (c *Collection) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[op] = err
}

// Len retorna la cantidad de documentos guardados.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Raw retorna una copia del documento con ese _id tal como está guardado
// (sin proyección), o nil.
func (c *Collection) Raw(id primitive.ObjectID) bson.D {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.docs {
		if v, ok := getPath(d, []string{"_id"}); ok && equal(v, id) {
			return cloneDoc(d)
		}
	}
	return nil
}

// injected consume un fallo programado con FailNext. Requiere c.mu tomado.
func (c *Collection) injected(op string) error {
	if err, ok := c.fail[op]; ok {
		delete(c.fail, op)
		return err
	}
	return nil
}

// begin toma el lock exclusivo (también en lecturas: injected muta c.fail).
func (c *Collection) begin(ctx context.Context, op string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if err := c.injected(op); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return c.mu.Unlock, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc any) error {
	done, err := c.begin(ctx, "InsertOne")
	if err != nil {
		return err
	}
	defer done()

	d, err := c.prepare(doc)
	if err != nil {
		return err
	}
	if err := c.checkUnique(d, -1); err != nil {
		return mongodriver.WriteException{WriteErrors: mongodriver.WriteErrors{*err}}
	}
	c.docs = append(c.docs, d)
	return nil
}

// InsertMany inserta en orden y se detiene en el primer error, como un insert ordenado.
func (c *Collection) InsertMany(ctx context.Context, docs []any) error {
	done, err := c.begin(ctx, "InsertMany")
	if err != nil {
		return err
	}
	defer done()

	for i, doc := range docs {
		d, err := c.prepare(doc)
		if err != nil {
			return err
		}
		if we := c.checkUnique(d, -1); we != nil {
			we.Index = i
			return mongodriver.BulkWriteException{WriteErrors: []mongodriver.BulkWriteError{{WriteError: *we}}}
		}
		c.docs = append(c.docs, d)
	}
	return nil
}

func (c *Collection) prepare(doc any) (bson.D, error) {
	d, err := toDoc(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := getPath(d, []string{"_id"}); !ok {
		d = append(bson.D{{Key: "_id", Value: primitive.NewObjectID()}}, d...)
	}
	return d, nil
}

func (c *Collection) Find(ctx context.Context, filter bson.D, opts mongo.FindOptions) (*mongodriver.Cursor, error) {
	done, err := c.begin(ctx, "Find")
	if err != nil {
		return nil, err
	}
	defer done()

	idx, err := c.matching(filter, 0)
	if err != nil {
		return nil, err
	}
	found := make([]bson.D, len(idx))
	for i, j := range idx {
		found[i] = c.docs[j]
	}

	if len(opts.Sort) > 0 {
		keys, err := toDoc(opts.Sort)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(found, func(a, b int) bool { return less(found[a], found[b], keys) })
	}
	if opts.Skip != nil {
		s := int(*opts.Skip)
		if s > len(found) {
			s = len(found)
		}
		found = found[s:]
	}
	if opts.Limit != nil && *opts.Limit > 0 && int(*opts.Limit) < len(found) {
		found = found[:*opts.Limit]
	}

	var proj bson.D
	if len(opts.Projection) > 0 {
		if proj, err = toDoc(opts.Projection); err != nil {
			return nil, err
		}
	}
	out := make([]any, len(found))
	for i, d := range found {
		out[i] = project(cloneDoc(d), proj)
	}
	return mongodriver.NewCursorFromDocuments(out, nil, nil)
}

func less(a, b bson.D, keys bson.D) bool {
	for _, k := range keys {
		va, vb := first(lookup(a, split(k.Key))), first(lookup(b, split(k.Key)))
		c := compare(va, vb)
		if c == 0 {
			continue
		}
		if toFloat(k.Value) < 0 {
			return c > 0
		}
		return c < 0
	}
	return false
}

func first(vals []any) any {
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

func (c *Collection) CountDocuments(ctx context.Context, filter bson.D, limit int64) (int64, error) {
	done, err := c.begin(ctx, "CountDocuments")
	if err != nil {
		return 0, err
	}
	defer done()

	idx, err := c.matching(filter, int(limit))
	if err != nil {
		return 0, err
	}
	return int64(len(idx)), nil
}

func (c *Collection) ReplaceOne(ctx context.Context, filter bson.D, doc any) (mongo.UpdateResult, error) {
	done, err := c.begin(ctx, "ReplaceOne")
	if err != nil {
		return mongo.UpdateResult{}, err
	}
	defer done()

	idx, err := c.matching(filter, 1)
	if err != nil || len(idx) == 0 {
		return mongo.UpdateResult{}, err
	}
	i := idx[0]
	d, err := toDoc(doc)
	if err != nil {
		return mongo.UpdateResult{}, err
	}
	oldID, _ := getPath(c.docs[i], []string{"_id"})
	if newID, ok := getPath(d, []string{"_id"}); ok && !equal(oldID, newID) {
		return mongo.UpdateResult{}, fmt.Errorf("the (immutable) field '_id' was found to have been altered")
	}
	d = unsetPath(d, []string{"_id"}).(bson.D)
	d = append(bson.D{{Key: "_id", Value: oldID}}, d...)
	return c.write(i, d)
}

func (c *Collection) UpdateOne(ctx context.Context, filter, update bson.D) (mongo.UpdateResult, error) {
	return c.update(ctx, "UpdateOne", filter, update, 1)
}

func (c *Collection) UpdateMany(ctx context.Context, filter, update bson.D) (mongo.UpdateResult, error) {
	return c.update(ctx, "UpdateMany", filter, update, 0)
}

func (c *Collection) update(ctx context.Context, op string, filter, update bson.D, limit int) (mongo.UpdateResult, error) {
	done, err := c.begin(ctx, op)
	if err != nil {
		return mongo.UpdateResult{}, err
	}
	defer done()

	upd, err := toDoc(update)
	if err != nil {
		return mongo.UpdateResult{}, err
	}
	idx, err := c.matching(filter, limit)
	if err != nil {
		return mongo.UpdateResult{}, err
	}
	var res mongo.UpdateResult
	for _, i := range idx {
		d, err := applyUpdate(cloneDoc(c.docs[i]), upd)
		if err != nil {
			return res, err
		}
		r, err := c.write(i, d)
		if err != nil {
			return res, err
		}
		res.Matched += r.Matched
		res.Modified += r.Modified
	}
	return res, nil
}

// write reemplaza el documento i validando índices únicos. Requiere c.mu tomado.
func (c *Collection) write(i int, d bson.D) (mongo.UpdateResult, error) {
	if we := c.checkUnique(d, i); we != nil {
		return mongo.UpdateResult{}, mongodriver.WriteException{WriteErrors: mongodriver.WriteErrors{*we}}
	}
	res := mongo.UpdateResult{Matched: 1}
	if compare(c.docs[i], d) != 0 {
		res.Modified = 1
	}
	c.docs[i] = d
	return res, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filter bson.D) (int64, error) {
	return c.delete(ctx, "DeleteOne", filter, 1)
}

func (c *Collection) DeleteMany(ctx context.Context, filter bson.D) (int64, error) {
	return c.delete(ctx, "DeleteMany", filter, 0)
}

func (c *Collection) delete(ctx context.Context, op string, filter bson.D, limit int) (int64, error) {
	done, err := c.begin(ctx, op)
	if err != nil {
		return 0, err
	}
	defer done()

	idx, err := c.matching(filter, limit)
	if err != nil || len(idx) == 0 {
		return 0, err
	}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	kept := c.docs[:0:0]
	for i, d := range c.docs {
		if !drop[i] {
			kept = append(kept, d)
		}
	}
	c.docs = kept
	return int64(len(idx)), nil
}

// EnsureIndex registra el índice. Solo los únicos tienen efecto.
// Falla si los documentos existentes ya violan la unicidad.
func (c *Collection) EnsureIndex(ctx context.Context, idx mongo.Index) error {
	done, err := c.begin(ctx, "EnsureIndex")
	if err != nil {
		return err
	}
	defer done()

	for _, have := range c.indexes {
		if have.Name != "" && have.Name == idx.Name {
			return nil
		}
	}
	if idx.Unique {
		for i := range c.docs {
			for j := i + 1; j < len(c.docs); j++ {
				if collides(c.docs[i], c.docs[j], idx.Keys) {
					return mongodriver.CommandError{Code: 11000, Message: "E11000 duplicate key error building index " + idx.Name}
				}
			}
		}
	}
	c.indexes = append(c.indexes, idx)
	return nil
}

// matching retorna los índices de los documentos que cumplen filter (hasta limit si > 0).
func (c *Collection) matching(filter bson.D, limit int) ([]int, error) {
	f, err := toDoc(filter)
	if err != nil {
		return nil, err
	}
	var out []int
	for i, d := range c.docs {
		ok, err := matches(d, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, i)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// checkUnique valida _id y los índices únicos contra todos los documentos salvo skip.
func (c *Collection) checkUnique(d bson.D, skip int) *mongodriver.WriteError {
	idKeys := bson.D{{Key: "_id", Value: 1}}
	for j, other := range c.docs {
		if j == skip {
			continue
		}
		if collides(d, other, idKeys) {
			return dupErr(c.name, "_id_", d, idKeys)
		}
		for _, idx := range c.indexes {
			if idx.Unique && collides(d, other, idx.Keys) {
				return dupErr(c.name, idx.Name, d, idx.Keys)
			}
		}
	}
	return nil
}

// collides reporta si a y b comparten valor en cada campo de keys.
// Un campo ausente cuenta como null; un array aporta cada elemento.
func collides(a, b bson.D, keys bson.D) bool {
	for _, k := range keys {
		va, vb := keyValues(a, k.Key), keyValues(b, k.Key)
		shared := false
		for _, x := range va {
			for _, y := range vb {
				if equal(x, y) {
					shared = true
				}
			}
		}
		if !shared {
			return false
		}
	}
	return true
}

func keyValues(d bson.D, path string) []any {
	vals := lookup(d, split(path))
	if len(vals) == 0 {
		return []any{nil}
	}
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		if a, ok := v.(bson.A); ok {
			out = append(out, a...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func dupErr(coll, index string, d bson.D, keys bson.D) *mongodriver.WriteError {
	dup := bson.D{}
	for _, k := range keys {
		dup = append(dup, bson.E{Key: k.Key, Value: first(lookup(d, split(k.Key)))})
	}
	return &mongodriver.WriteError{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: %s index: %s dup key: %v", coll, index, dup),
	}
}
