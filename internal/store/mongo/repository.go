package mongo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/docstore/internal/domain/entity"
	"github.com/dropDatabas3/docstore/internal/domain/repository"
	"github.com/dropDatabas3/docstore/internal/metrics"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
	"github.com/dropDatabas3/docstore/internal/store/query"
)

type settings struct {
	now        func() time.Time
	log        *zap.Logger
	projection any
}

// Option configura un Repository.
type Option func(*settings)

// WithDefaultProjection fija la proyección que se aplica a toda lectura que no
// la desactive con WithoutDefaultProjection. Los includes de cada llamada ganan;
// los excludes se suman.
func WithDefaultProjection[T entity.Entity](q query.Query[T]) Option {
	return func(s *settings) { s.projection = q }
}

// WithClock reemplaza el reloj usado para createTime/updateTime.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithLogger reemplaza el logger (default: logger.Named("store.mongo")).
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.log = l }
}

// Repository es el acceso tipado a una colección. T es un tipo puntero
// (*identity.User) que embebe entity.Base.
//
// Es seguro para uso concurrente: no tiene estado mutable propio.
type Repository[T entity.Entity] struct {
	coll Collection
	name string
	def  query.Query[T]
	now  func() time.Time
	log  *zap.Logger
}

// NewRepository arma un repositorio sobre coll.
// Hace panic si la proyección por defecto es inválida o de otro tipo de entidad:
// es un error de composición, no de runtime.
func NewRepository[T entity.Entity](coll Collection, opts ...Option) *Repository[T] {
	s := settings{now: time.Now}
	for _, o := range opts {
		o(&s)
	}
	if s.log == nil {
		s.log = logger.Named("store.mongo")
	}
	r := &Repository[T]{
		coll: coll,
		name: coll.Name(),
		now:  func() time.Time { return entity.Truncate(s.now()) },
	}
	r.log = s.log.With(logger.Collection(r.name))
	if s.projection != nil {
		def, ok := s.projection.(query.Query[T])
		if !ok {
			panic(fmt.Sprintf("mongo: default projection for %s has type %T", r.name, s.projection))
		}
		if err := def.Err(); err != nil {
			panic("mongo: invalid default projection for " + r.name + ": " + err.Error())
		}
		r.def = def
	}
	return r
}

// Name retorna el nombre de la colección.
func (r *Repository[T]) Name() string { return r.name }

// Query retorna un descriptor vacío para T.
func (r *Repository[T]) Query() query.Query[T] { return query.New[T]() }

// ─── Execute: único punto de acceso al store ───

// ExecuteQuery ejecuta un find. Sort, skip y limit solo se envían si hay sort.
func (r *Repository[T]) ExecuteQuery(ctx context.Context, q query.Query[T]) (out []T, err error) {
	start := time.Now()
	defer func() { r.observe("find", start, err, logger.Count(len(out))) }()

	if err = q.Err(); err != nil {
		return nil, err
	}
	if emptyPage(q) {
		return []T{}, nil
	}
	cur, err := r.coll.Find(ctx, q.Filter(), r.findOptions(q))
	if err != nil {
		return nil, r.storeErr("find", err)
	}
	if err = cur.All(ctx, &out); err != nil {
		return nil, r.storeErr("find", err)
	}
	return out, nil
}

// ExecuteQueryFirst retorna el primer documento o el valor cero de T si no hay ninguno.
func (r *Repository[T]) ExecuteQueryFirst(ctx context.Context, q query.Query[T]) (out T, err error) {
	start := time.Now()
	defer func() { r.observe("findFirst", start, err) }()

	if err = q.Err(); err != nil {
		return out, err
	}
	if emptyPage(q) {
		return out, nil
	}
	opts := r.findOptions(q)
	one := int64(1)
	opts.Limit = &one
	cur, err := r.coll.Find(ctx, q.Filter(), opts)
	if err != nil {
		return out, r.storeErr("findFirst", err)
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err = cur.Err(); err != nil {
			return out, r.storeErr("findFirst", err)
		}
		return out, nil
	}
	if err = cur.Decode(&out); err != nil {
		var zero T
		return zero, r.storeErr("findFirst", err)
	}
	return out, nil
}

// ExecuteCount cuenta los documentos que matchean el filtro de q.
func (r *Repository[T]) ExecuteCount(ctx context.Context, q query.Query[T]) (int64, error) {
	return r.count(ctx, "count", q, 0)
}

// ExecuteUpdate aplica el update de q al primer documento que matchea.
// Siempre agrega $set updateTime = now.
func (r *Repository[T]) ExecuteUpdate(ctx context.Context, q query.Query[T]) (UpdateResult, error) {
	return r.update(ctx, "update", q, false)
}

// ExecuteUpdateMany aplica el update de q a todos los documentos que matchean.
func (r *Repository[T]) ExecuteUpdateMany(ctx context.Context, q query.Query[T]) (UpdateResult, error) {
	return r.update(ctx, "updateMany", q, true)
}

// ExecuteDelete borra físicamente el primer documento que matchea.
func (r *Repository[T]) ExecuteDelete(ctx context.Context, q query.Query[T]) (int64, error) {
	return r.delete(ctx, "delete", q, false)
}

// ExecuteDeleteMany borra físicamente todos los documentos que matchean.
func (r *Repository[T]) ExecuteDeleteMany(ctx context.Context, q query.Query[T]) (int64, error) {
	return r.delete(ctx, "deleteMany", q, true)
}

// emptyPage reporta una página ordenada con Limit(0). El servidor lee limit 0
// como "sin límite"; para el repositorio es el rango vacío [skip, skip).
func emptyPage[T entity.Entity](q query.Query[T]) bool {
	n := q.LimitN()
	return q.HasSort() && n != nil && *n == 0
}

func (r *Repository[T]) findOptions(q query.Query[T]) FindOptions {
	opts := FindOptions{Projection: q.ProjectionWith(r.def)}
	if q.HasSort() {
		opts.Sort = q.SortDoc()
		opts.Skip = q.SkipN()
		opts.Limit = q.LimitN()
	}
	return opts
}

func (r *Repository[T]) count(ctx context.Context, op string, q query.Query[T], limit int64) (n int64, err error) {
	start := time.Now()
	defer func() { r.observe(op, start, err, logger.Count(int(n))) }()

	if err = q.Err(); err != nil {
		return 0, err
	}
	n, err = r.coll.CountDocuments(ctx, q.Filter(), limit)
	if err != nil {
		return 0, r.storeErr(op, err)
	}
	return n, nil
}

func (r *Repository[T]) update(ctx context.Context, op string, q query.Query[T], many bool) (res UpdateResult, err error) {
	start := time.Now()
	defer func() { r.observe(op, start, err, logger.Matched(res.Matched), logger.Modified(res.Modified)) }()

	if err = q.Err(); err != nil {
		return res, err
	}
	if !q.HasUpdate() {
		return res, &repository.ValidationError{Op: op, Reason: "descriptor has no update operations"}
	}
	q = q.Set(entity.FieldUpdateTime, r.now())
	if err = q.Err(); err != nil {
		return res, err
	}
	if many {
		res, err = r.coll.UpdateMany(ctx, q.Filter(), q.Update())
	} else {
		res, err = r.coll.UpdateOne(ctx, q.Filter(), q.Update())
	}
	if err != nil {
		return UpdateResult{}, r.storeErr(op, err)
	}
	return res, nil
}

func (r *Repository[T]) delete(ctx context.Context, op string, q query.Query[T], many bool) (n int64, err error) {
	start := time.Now()
	defer func() { r.observe(op, start, err, logger.Count(int(n))) }()

	if err = q.Err(); err != nil {
		return 0, err
	}
	if many {
		n, err = r.coll.DeleteMany(ctx, q.Filter())
	} else {
		n, err = r.coll.DeleteOne(ctx, q.Filter())
	}
	if err != nil {
		return 0, r.storeErr(op, err)
	}
	return n, nil
}

// ─── Insert / Replace ───

// Insert asigna ID, createTime y state (Active si estaba vacío), limpia updateTime
// y escribe el documento. Retorna la misma entidad con esos campos cargados.
func (r *Repository[T]) Insert(ctx context.Context, e T) (T, error) {
	start := time.Now()
	if isNil(e) {
		err := &repository.ValidationError{Op: "insert", Reason: "nil entity"}
		r.observe("insert", start, err)
		return e, err
	}
	r.stampNew(e.Meta(), r.now())
	err := r.coll.InsertOne(ctx, e)
	if err != nil {
		err = r.storeErr("insert", err)
	}
	r.observe("insert", start, err, logger.ID(e.Meta().IDHex()))
	return e, err
}

// InsertMany inserta en un único batch. Sin entidades no hay round trip.
func (r *Repository[T]) InsertMany(ctx context.Context, es []T) ([]T, error) {
	if len(es) == 0 {
		return es, nil
	}
	start := time.Now()
	now := r.now()
	docs := make([]any, len(es))
	for i, e := range es {
		if isNil(e) {
			err := &repository.ValidationError{Op: "insertMany", Reason: fmt.Sprintf("nil entity at index %d", i)}
			r.observe("insertMany", start, err)
			return nil, err
		}
		r.stampNew(e.Meta(), now)
		docs[i] = e
	}
	err := r.coll.InsertMany(ctx, docs)
	if err != nil {
		err = r.storeErr("insertMany", err)
	}
	r.observe("insertMany", start, err, logger.Count(len(es)))
	if err != nil {
		return nil, err
	}
	return es, nil
}

func (r *Repository[T]) stampNew(m *entity.Base, now time.Time) {
	m.ID = primitive.NewObjectID()
	m.CreateTime = now
	m.UpdateTime = nil
	if m.State == "" {
		m.State = entity.StateActive
	}
}

// Replace sobreescribe el documento completo por ID y fija updateTime.
// Si no existe documento con ese ID el resultado tiene Matched == 0, sin error.
func (r *Repository[T]) Replace(ctx context.Context, e T) (res UpdateResult, err error) {
	start := time.Now()
	defer func() { r.observe("replace", start, err, logger.Matched(res.Matched)) }()

	if isNil(e) {
		return res, &repository.ValidationError{Op: "replace", Reason: "nil entity"}
	}
	m := e.Meta()
	if m.ID.IsZero() {
		return res, &repository.ValidationError{Op: "replace", Field: entity.FieldID, Reason: "entity has no id"}
	}
	prev := m.UpdateTime
	t := r.after(m.CreateTime, m.UpdateTime)
	m.UpdateTime = &t

	res, err = r.coll.ReplaceOne(ctx, bson.D{{Key: entity.FieldID, Value: m.ID}}, e)
	if err != nil {
		m.UpdateTime = prev
		return UpdateResult{}, r.storeErr("replace", err)
	}
	return res, nil
}

// after retorna now, o el primer milisegundo posterior a los timestamps dados
// si el reloj no avanzó.
func (r *Repository[T]) after(created time.Time, updated *time.Time) time.Time {
	t := r.now()
	if !t.After(created) {
		t = created.Add(time.Millisecond)
	}
	if updated != nil && !t.After(*updated) {
		t = updated.Add(time.Millisecond)
	}
	return t
}

// ReplaceManyResult reporta el resultado por entidad de ReplaceMany.
type ReplaceManyResult struct {
	Attempted int
	Matched   int64
	Modified  int64
	// Missing son los IDs (hex) que no matchearon ningún documento.
	Missing []string
	// Failed son los IDs (hex) cuyo replace devolvió error.
	Failed []string
}

// ReplaceMany lanza un Replace concurrente por entidad y espera a todos.
// No hay rollback: si alguno falla, los demás pueden haber quedado escritos.
// El error es la unión (errors.Join) de los fallos individuales.
func (r *Repository[T]) ReplaceMany(ctx context.Context, es []T) (ReplaceManyResult, error) {
	out := ReplaceManyResult{Attempted: len(es)}
	if len(es) == 0 {
		return out, nil
	}
	results := make([]UpdateResult, len(es))
	errs := make([]error, len(es))

	var g errgroup.Group
	for i, e := range es {
		i, e := i, e
		g.Go(func() error {
			results[i], errs[i] = r.Replace(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	for i, e := range es {
		id := ""
		if !isNil(e) {
			id = e.Meta().IDHex()
		}
		switch {
		case errs[i] != nil:
			out.Failed = append(out.Failed, id)
		case results[i].Matched == 0:
			out.Missing = append(out.Missing, id)
		default:
			out.Matched += results[i].Matched
			out.Modified += results[i].Modified
		}
	}
	return out, errors.Join(errs...)
}

// ─── Lecturas ───
// "No encontrado" nunca es error: los single lookups retornan el valor cero de T.
// No se filtra por state implícitamente.

// Get busca por ID.
func (r *Repository[T]) Get(ctx context.Context, id primitive.ObjectID) (T, error) {
	return r.ExecuteQueryFirst(ctx, r.Query().Eq(entity.FieldID, id))
}

// GetMany busca por una lista de IDs.
func (r *Repository[T]) GetMany(ctx context.Context, ids []primitive.ObjectID) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.ExecuteQuery(ctx, r.Query().In(entity.FieldID, ids))
}

// Find retorna todos los documentos que cumplen c.
func (r *Repository[T]) Find(ctx context.Context, c query.Cond) ([]T, error) {
	return r.ExecuteQuery(ctx, r.Query().Where(c))
}

// FindBy retorna todos los documentos con field == v.
func (r *Repository[T]) FindBy(ctx context.Context, field string, v any) ([]T, error) {
	return r.ExecuteQuery(ctx, r.Query().Eq(field, v))
}

// GetBy retorna el primer documento con field == v.
func (r *Repository[T]) GetBy(ctx context.Context, field string, v any) (T, error) {
	return r.ExecuteQueryFirst(ctx, r.Query().Eq(field, v))
}

// GetFirst retorna el primer documento que cumple c (orden natural).
func (r *Repository[T]) GetFirst(ctx context.Context, c query.Cond) (T, error) {
	return r.ExecuteQueryFirst(ctx, r.Query().Where(c))
}

// GetFirstSorted retorna el primer documento que cumple c según el orden dado.
// field "" ordena por _id.
func (r *Repository[T]) GetFirstSorted(ctx context.Context, c query.Cond, field string, desc bool) (T, error) {
	return r.ExecuteQueryFirst(ctx, r.Query().Where(c).Sort(field, desc))
}

// GetSorted retorna los documentos que cumplen c ordenados por field.
func (r *Repository[T]) GetSorted(ctx context.Context, c query.Cond, field string, desc bool) ([]T, error) {
	return r.ExecuteQuery(ctx, r.Query().Where(c).Sort(field, desc))
}

// GetSortedPage es GetSorted con paginación: posiciones [skip, skip+limit).
func (r *Repository[T]) GetSortedPage(ctx context.Context, c query.Cond, field string, desc bool, skip, limit int64) ([]T, error) {
	return r.ExecuteQuery(ctx, r.Query().Where(c).Sort(field, desc).Skip(skip).Limit(limit))
}

// GetIn retorna los documentos con field ∈ values.
func (r *Repository[T]) GetIn(ctx context.Context, field string, values any) ([]T, error) {
	return r.ExecuteQuery(ctx, r.Query().In(field, values))
}

// GetInFirst retorna el primer documento con field ∈ values.
func (r *Repository[T]) GetInFirst(ctx context.Context, field string, values any) (T, error) {
	return r.ExecuteQueryFirst(ctx, r.Query().In(field, values))
}

// GetInSorted retorna los documentos con field ∈ values ordenados por sortField.
func (r *Repository[T]) GetInSorted(ctx context.Context, field string, values any, sortField string, desc bool) ([]T, error) {
	return r.ExecuteQuery(ctx, r.Query().In(field, values).Sort(sortField, desc))
}

// GetInSortedPage es GetInSorted con paginación.
func (r *Repository[T]) GetInSortedPage(ctx context.Context, field string, values any, sortField string, desc bool, skip, limit int64) ([]T, error) {
	return r.ExecuteQuery(ctx, r.Query().In(field, values).Sort(sortField, desc).Skip(skip).Limit(limit))
}

// ─── Cardinalidad ───

// Count cuenta los documentos que cumplen c.
func (r *Repository[T]) Count(ctx context.Context, c query.Cond) (int64, error) {
	return r.ExecuteCount(ctx, r.Query().Where(c))
}

// CountBy cuenta los documentos con field == v.
func (r *Repository[T]) CountBy(ctx context.Context, field string, v any) (int64, error) {
	return r.ExecuteCount(ctx, r.Query().Eq(field, v))
}

// Any reporta si al menos un documento cumple c.
func (r *Repository[T]) Any(ctx context.Context, c query.Cond) (bool, error) {
	n, err := r.count(ctx, "any", r.Query().Where(c), 1)
	return n > 0, err
}

// AnyBy reporta si existe algún documento con field == v.
func (r *Repository[T]) AnyBy(ctx context.Context, field string, v any) (bool, error) {
	n, err := r.count(ctx, "any", r.Query().Eq(field, v), 1)
	return n > 0, err
}

// ExistsOne es true si exactamente un documento cumple c (no "al menos uno").
func (r *Repository[T]) ExistsOne(ctx context.Context, c query.Cond) (bool, error) {
	n, err := r.count(ctx, "existsOne", r.Query().Where(c), 2)
	return n == 1, err
}

// ExistsOneBy es ExistsOne con field == v.
func (r *Repository[T]) ExistsOneBy(ctx context.Context, field string, v any) (bool, error) {
	n, err := r.count(ctx, "existsOne", r.Query().Eq(field, v), 2)
	return n == 1, err
}

// ExistsID reporta si existe un documento con ese ID.
func (r *Repository[T]) ExistsID(ctx context.Context, id primitive.ObjectID) (bool, error) {
	return r.ExistsOneBy(ctx, entity.FieldID, id)
}

// ─── Soft delete: state = Archived, el documento queda ───

// DeleteSoft archiva el documento con ese ID.
func (r *Repository[T]) DeleteSoft(ctx context.Context, id primitive.ObjectID) (UpdateResult, error) {
	return r.ExecuteUpdate(ctx, r.archive(r.Query().Eq(entity.FieldID, id)))
}

// DeleteSoftEntity archiva e y refleja el nuevo state en la entidad.
func (r *Repository[T]) DeleteSoftEntity(ctx context.Context, e T) (UpdateResult, error) {
	if isNil(e) {
		return UpdateResult{}, &repository.ValidationError{Op: "deleteSoft", Reason: "nil entity"}
	}
	res, err := r.DeleteSoft(ctx, e.Meta().ID)
	if err == nil && res.Matched > 0 {
		e.Meta().State = entity.StateArchived
	}
	return res, err
}

// DeleteSoftFirst archiva el primer documento que cumple c.
func (r *Repository[T]) DeleteSoftFirst(ctx context.Context, c query.Cond) (UpdateResult, error) {
	return r.ExecuteUpdate(ctx, r.archive(r.Query().Where(c)))
}

// DeleteSoftAll archiva todos los documentos que cumplen c.
func (r *Repository[T]) DeleteSoftAll(ctx context.Context, c query.Cond) (UpdateResult, error) {
	return r.ExecuteUpdateMany(ctx, r.archive(r.Query().Where(c)))
}

func (r *Repository[T]) archive(q query.Query[T]) query.Query[T] {
	return q.Set(entity.FieldState, entity.StateArchived)
}

// ─── Hard delete ───

// DeleteHard borra el documento con ese ID. Retorna la cantidad borrada (0 o 1).
func (r *Repository[T]) DeleteHard(ctx context.Context, id primitive.ObjectID) (int64, error) {
	return r.ExecuteDelete(ctx, r.Query().Eq(entity.FieldID, id))
}

// DeleteHardEntity borra e por ID.
func (r *Repository[T]) DeleteHardEntity(ctx context.Context, e T) (int64, error) {
	if isNil(e) {
		return 0, &repository.ValidationError{Op: "deleteHard", Reason: "nil entity"}
	}
	return r.DeleteHard(ctx, e.Meta().ID)
}

// DeleteHardFirst borra el primer documento que cumple c.
func (r *Repository[T]) DeleteHardFirst(ctx context.Context, c query.Cond) (int64, error) {
	return r.ExecuteDelete(ctx, r.Query().Where(c))
}

// DeleteHardAll borra todos los documentos que cumplen c.
func (r *Repository[T]) DeleteHardAll(ctx context.Context, c query.Cond) (int64, error) {
	return r.ExecuteDeleteMany(ctx, r.Query().Where(c))
}

// EnsureIndexes crea los índices dados (idempotente del lado del servidor).
func (r *Repository[T]) EnsureIndexes(ctx context.Context, idx ...Index) error {
	for _, i := range idx {
		start := time.Now()
		err := r.coll.EnsureIndex(ctx, i)
		if err != nil {
			err = r.storeErr("ensureIndex", err)
		}
		r.observe("ensureIndex", start, err, zap.String("index", i.Name))
		if err != nil {
			return err
		}
	}
	return nil
}

// ─── soporte ───

func (r *Repository[T]) storeErr(op string, err error) error {
	return &repository.StoreError{Op: op, Collection: r.name, Err: err}
}

func (r *Repository[T]) observe(op string, start time.Time, err error, fields ...zap.Field) {
	took := time.Since(start)
	metrics.ObserveStoreOp(r.name, op, took, errKind(err))

	fields = append(fields, logger.Op(op), logger.Duration(took))
	switch {
	case err == nil:
		r.log.Debug("store op", fields...)
	case repository.IsValidation(err):
		r.log.Warn("store op rejected", append(fields, logger.Err(err))...)
	default:
		r.log.Error("store op failed", append(fields, logger.Err(err))...)
	}
}

func errKind(err error) string {
	switch {
	case err == nil:
		return ""
	case repository.IsValidation(err):
		return "validation"
	case repository.IsDuplicateKey(err):
		return "duplicate"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "store"
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
