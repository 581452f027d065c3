package query

import (
	"reflect"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
)

type projMode int8

const (
	projNone projMode = iota
	projInclude
	projExclude
)

const idField = "_id"

// Query es el descriptor acumulado de filtro/sort/update/proyección/paginación.
//
// Es un valor inmutable: cada método retorna una copia nueva y nunca modifica
// el receptor, así una query base puede compartirse entre goroutines y ramificarse.
// El primer error de construcción queda pegado al descriptor (ver Err) y el
// repositorio se niega a ejecutarlo.
type Query[T any] struct {
	filters   []bson.D
	sort      bson.D
	updates   []updateOp
	proj      bson.D
	mode      projMode
	skip      *int64
	limit     *int64
	noDefault bool
	err       error
}

// New retorna un descriptor vacío (match all, sin sort, sin update).
func New[T any]() Query[T] { return Query[T]{} }

func (q Query[T]) typ() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (q Query[T]) fail(err error) Query[T] {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Err retorna el primer error de construcción, si lo hubo.
func (q Query[T]) Err() error { return q.err }

// ─── Filtro ───

// Where agrega un predicado, combinado con AND con los anteriores.
// El predicado vacío no agrega nada (match all).
func (q Query[T]) Where(c Cond) Query[T] {
	f, err := c.compile(q.typ())
	if err != nil {
		return q.fail(err)
	}
	if len(f) == 0 {
		return q
	}
	q.filters = append(slices.Clip(q.filters), f)
	return q
}

// Eq agrega field == v.
func (q Query[T]) Eq(field string, v any) Query[T] { return q.Where(Eq(field, v)) }

// In agrega field ∈ values.
func (q Query[T]) In(field string, values any) Query[T] { return q.Where(In(field, values)) }

// Match requiere que algún elemento del array field cumpla sub.
func (q Query[T]) Match(field string, sub Cond) Query[T] { return q.Where(ElemMatch(field, sub)) }

// Filter retorna el filtro compuesto; bson.D{} si no hay ninguno (match all).
func (q Query[T]) Filter() bson.D {
	switch len(q.filters) {
	case 0:
		return bson.D{}
	case 1:
		return q.filters[0]
	}
	parts := make(bson.A, len(q.filters))
	for i, f := range q.filters {
		parts[i] = f
	}
	return bson.D{{Key: "$and", Value: parts}}
}

// HasFilter reporta si se agregó algún predicado.
func (q Query[T]) HasFilter() bool { return len(q.filters) > 0 }

// ─── Sort y paginación ───

// Sort agrega una clave de orden; field "" ordena por _id.
// Llamadas sucesivas forman una clave compuesta en orden de llamada.
func (q Query[T]) Sort(field string, desc bool) Query[T] {
	if field == "" {
		field = idField
	}
	if _, err := resolve(q.typ(), field); err != nil {
		return q.fail(withOp(err, "sort"))
	}
	for _, e := range q.sort {
		if e.Key == field {
			return q.fail(errorf("sort", field, "already part of the sort key"))
		}
	}
	dir := 1
	if desc {
		dir = -1
	}
	q.sort = append(slices.Clip(q.sort), bson.E{Key: field, Value: dir})
	return q
}

// SortDoc retorna la especificación de orden (nil si no hay).
func (q Query[T]) SortDoc() bson.D { return q.sort }

// HasSort reporta si hay un orden explícito.
func (q Query[T]) HasSort() bool { return len(q.sort) > 0 }

// Skip descarta los primeros n resultados. Solo se aplica con un Sort explícito:
// sin orden la página no es determinística.
func (q Query[T]) Skip(n int64) Query[T] {
	if n < 0 {
		return q.fail(errorf("skip", "", "must not be negative"))
	}
	q.skip = &n
	return q
}

// Limit acota la cantidad de resultados. Solo se aplica con un Sort explícito.
// Limit(0) es una página vacía, no "sin límite".
func (q Query[T]) Limit(n int64) Query[T] {
	if n < 0 {
		return q.fail(errorf("limit", "", "must not be negative"))
	}
	q.limit = &n
	return q
}

// SkipN retorna el skip configurado (nil si no hay).
func (q Query[T]) SkipN() *int64 { return q.skip }

// LimitN retorna el limit configurado (nil si no hay).
func (q Query[T]) LimitN() *int64 { return q.limit }

// ─── Proyección ───

// Include agrega campos a una proyección de inclusión.
func (q Query[T]) Include(fields ...string) Query[T] { return q.project(projInclude, fields) }

// Exclude agrega campos a una proyección de exclusión.
// Mezclar Include y Exclude en un descriptor es un error (salvo excluir _id).
func (q Query[T]) Exclude(fields ...string) Query[T] { return q.project(projExclude, fields) }

func (q Query[T]) project(mode projMode, fields []string) Query[T] {
	op := "include"
	if mode == projExclude {
		op = "exclude"
	}
	for _, f := range fields {
		if _, err := resolve(q.typ(), f); err != nil {
			return q.fail(withOp(err, op))
		}
		idExclusion := mode == projExclude && f == idField
		if !idExclusion && q.mode != projNone && q.mode != mode {
			return q.fail(errorf(op, f, "cannot mix included and excluded fields in one projection"))
		}
		if !idExclusion {
			q.mode = mode
		}
		if containsKey(q.proj, f) {
			continue
		}
		v := 1
		if mode == projExclude {
			v = 0
		}
		q.proj = append(slices.Clip(q.proj), bson.E{Key: f, Value: v})
	}
	return q
}

// Projection retorna la proyección acumulada (nil si no hay).
func (q Query[T]) Projection() bson.D { return q.proj }

// WithoutDefaultProjection indica al repositorio que no aplique su proyección por defecto.
func (q Query[T]) WithoutDefaultProjection() Query[T] {
	q.noDefault = true
	return q
}

// ProjectionWith compone la proyección de q con una proyección por defecto:
// los includes de q ganan, los excludes de q se suman a los del default,
// y sin proyección propia se usa el default.
func (q Query[T]) ProjectionWith(def Query[T]) bson.D {
	if q.noDefault || def.mode == projNone && len(def.proj) == 0 {
		return q.proj
	}
	switch q.mode {
	case projInclude:
		return q.proj
	case projExclude:
		if def.mode != projExclude {
			return q.proj
		}
		out := slices.Clone(def.proj)
		for _, e := range q.proj {
			if !containsKey(out, e.Key) {
				out = append(out, e)
			}
		}
		return out
	}
	if len(q.proj) > 0 {
		// solo exclusión de _id
		out := slices.Clone(def.proj)
		if !containsKey(out, idField) {
			out = append(out, bson.E{Key: idField, Value: 0})
		}
		return out
	}
	return def.proj
}

func containsKey(d bson.D, key string) bool {
	for _, e := range d {
		if e.Key == key {
			return true
		}
	}
	return false
}
