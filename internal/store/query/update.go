package query

import (
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

type updateOp struct {
	op    string // $set, $inc, $addToSet, $push, $pull, $pullAll
	field string
	value any
	list  bson.A // $addToSet/$push/$pullAll acumulan acá
	each  bool
}

// Set asigna field = v. Si el campo ya tenía un $set, gana el último.
func (q Query[T]) Set(field string, v any) Query[T] {
	ft, err := resolve(q.typ(), field)
	if err != nil {
		return q.fail(withOp(err, "$set"))
	}
	if !compatible(ft, v) {
		return q.fail(errorf("$set", field, "value of type "+typeName(v)+" is not assignable to "+ft.String()))
	}
	return q.addUpdate(updateOp{op: "$set", field: field, value: v})
}

// Inc suma n al campo numérico field (si no existe, lo crea con n).
// Varios Inc sobre el mismo campo se acumulan.
func (q Query[T]) Inc(field string, n int64) Query[T] {
	ft, err := resolve(q.typ(), field)
	if err != nil {
		return q.fail(withOp(err, "$inc"))
	}
	if !isNumeric(deref(ft).Kind()) {
		return q.fail(errorf("$inc", field, "is not numeric ("+ft.String()+")"))
	}
	return q.addUpdate(updateOp{op: "$inc", field: field, value: n})
}

// AddToSet agrega v al array field si no está (igualdad de elementos).
func (q Query[T]) AddToSet(field string, v any) Query[T] {
	return q.arrayUpdate("$addToSet", field, bson.A{v}, false)
}

// AddToSetEach agrega cada elemento de values que no esté ya en el array.
func (q Query[T]) AddToSetEach(field string, values any) Query[T] {
	arr, ok := toArray(values)
	if !ok {
		return q.fail(errorf("$addToSet", field, "values must be a slice, got "+typeName(values)))
	}
	return q.arrayUpdate("$addToSet", field, arr, true)
}

// Push agrega v al final del array field (admite duplicados).
func (q Query[T]) Push(field string, v any) Query[T] {
	return q.arrayUpdate("$push", field, bson.A{v}, false)
}

// Pull quita del array field los elementos iguales a v.
func (q Query[T]) Pull(field string, v any) Query[T] {
	return q.arrayUpdate("$pullAll", field, bson.A{v}, true)
}

// PullAll quita del array field los elementos iguales a alguno de values.
func (q Query[T]) PullAll(field string, values any) Query[T] {
	arr, ok := toArray(values)
	if !ok {
		return q.fail(errorf("$pullAll", field, "values must be a slice, got "+typeName(values)))
	}
	return q.arrayUpdate("$pullAll", field, arr, true)
}

// PullWhere quita del array field los elementos que cumplen sub.
func (q Query[T]) PullWhere(field string, sub Cond) Query[T] {
	ft, err := resolve(q.typ(), field)
	if err != nil {
		return q.fail(withOp(err, "$pull"))
	}
	et, ok := elemType(ft)
	if !ok {
		return q.fail(errorf("$pull", field, "is not an array"))
	}
	cond, err := sub.compile(et)
	if err != nil {
		return q.fail(err)
	}
	return q.addUpdate(updateOp{op: "$pull", field: field, value: cond})
}

func (q Query[T]) arrayUpdate(op, field string, values bson.A, each bool) Query[T] {
	ft, err := resolve(q.typ(), field)
	if err != nil {
		return q.fail(withOp(err, op))
	}
	et, ok := elemType(ft)
	if !ok {
		return q.fail(errorf(op, field, "is not an array"))
	}
	for _, v := range values {
		if !compatible(et, v) {
			return q.fail(errorf(op, field, "element of type "+typeName(v)+" is not assignable to "+et.String()))
		}
	}
	return q.addUpdate(updateOp{op: op, field: field, list: values, each: each})
}

// addUpdate compone una mutación nueva sin tocar las anteriores.
// Mismo operador y mismo campo se fusionan; operadores distintos sobre el mismo
// path (o un path que lo contiene) son un conflicto que MongoDB rechazaría.
func (q Query[T]) addUpdate(u updateOp) Query[T] {
	for i, prev := range q.updates {
		if prev.field == u.field && prev.op == u.op {
			merged := prev
			switch u.op {
			case "$set":
				merged.value = u.value
			case "$inc":
				merged.value = prev.value.(int64) + u.value.(int64)
			case "$addToSet", "$push", "$pullAll":
				merged.list = append(slices.Clip(prev.list), u.list...)
				merged.each = true
			default:
				return q.fail(errorf(u.op, u.field, "already has a "+u.op+" in this update"))
			}
			q.updates = slices.Clone(q.updates)
			q.updates[i] = merged
			return q
		}
		if overlaps(prev.field, u.field) {
			return q.fail(errorf(u.op, u.field, "conflicts with "+prev.op+" on "+prev.field))
		}
	}
	q.updates = append(slices.Clip(q.updates), u)
	return q
}

func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

// HasUpdate reporta si hay mutaciones acumuladas.
func (q Query[T]) HasUpdate() bool { return len(q.updates) > 0 }

// Update arma el documento de update agrupado por operador, en orden de aparición.
func (q Query[T]) Update() bson.D {
	var out bson.D
	index := map[string]int{}
	for _, u := range q.updates {
		var val any
		switch u.op {
		case "$set", "$inc", "$pull":
			val = u.value
		case "$pullAll":
			val = u.list
		default:
			if u.each || len(u.list) != 1 {
				val = bson.D{{Key: "$each", Value: u.list}}
			} else {
				val = u.list[0]
			}
		}
		i, ok := index[u.op]
		if !ok {
			index[u.op] = len(out)
			out = append(out, bson.E{Key: u.op, Value: bson.D{}})
			i = len(out) - 1
		}
		out[i].Value = append(out[i].Value.(bson.D), bson.E{Key: u.field, Value: val})
	}
	return out
}
