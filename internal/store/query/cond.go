package query

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/dropDatabas3/docstore/internal/domain/repository"
)

// Cond es un predicado sobre los campos de un documento. Se compila contra el
// tipo de la entidad al pasarlo a Query.Where, que valida paths y tipos.
// El valor cero (Cond{}) matchea todo.
type Cond struct {
	op    string
	field string
	value any
	subs  []Cond
}

// All es el predicado "match all".
func All() Cond { return Cond{} }

// IsAll reporta si c es el predicado vacío.
func (c Cond) IsAll() bool { return c.op == "" }

func Eq(field string, v any) Cond  { return Cond{op: "$eq", field: field, value: v} }
func Ne(field string, v any) Cond  { return Cond{op: "$ne", field: field, value: v} }
func Gt(field string, v any) Cond  { return Cond{op: "$gt", field: field, value: v} }
func Gte(field string, v any) Cond { return Cond{op: "$gte", field: field, value: v} }
func Lt(field string, v any) Cond  { return Cond{op: "$lt", field: field, value: v} }
func Lte(field string, v any) Cond { return Cond{op: "$lte", field: field, value: v} }

// In requiere que el campo sea igual a alguno de values (un slice).
func In(field string, values any) Cond { return Cond{op: "$in", field: field, value: values} }

// Nin es la negación de In.
func Nin(field string, values any) Cond { return Cond{op: "$nin", field: field, value: values} }

// Exists filtra por presencia del campo.
func Exists(field string, exists bool) Cond {
	return Cond{op: "$exists", field: field, value: exists}
}

// ElemMatch requiere que al menos un elemento del array field cumpla sub.
// Los campos de sub son relativos al elemento; con field "" sub aplica al elemento escalar.
func ElemMatch(field string, sub Cond) Cond {
	return Cond{op: "$elemMatch", field: field, subs: []Cond{sub}}
}

func And(conds ...Cond) Cond { return Cond{op: "$and", subs: conds} }
func Or(conds ...Cond) Cond  { return Cond{op: "$or", subs: conds} }
func Nor(conds ...Cond) Cond { return Cond{op: "$nor", subs: conds} }

// compile traduce el predicado a un filtro de MongoDB validando contra t.
func (c Cond) compile(t reflect.Type) (bson.D, error) {
	switch c.op {
	case "":
		return bson.D{}, nil
	case "$and":
		parts := make(bson.A, 0, len(c.subs))
		for _, s := range c.subs {
			d, err := s.compile(t)
			if err != nil {
				return nil, err
			}
			if len(d) > 0 {
				parts = append(parts, d)
			}
		}
		switch len(parts) {
		case 0:
			return bson.D{}, nil
		case 1:
			return parts[0].(bson.D), nil
		}
		return bson.D{{Key: "$and", Value: parts}}, nil
	case "$or", "$nor":
		if len(c.subs) == 0 {
			return nil, errorf(c.op, "", "requires at least one condition")
		}
		parts := make(bson.A, 0, len(c.subs))
		for _, s := range c.subs {
			d, err := s.compile(t)
			if err != nil {
				return nil, err
			}
			parts = append(parts, d)
		}
		return bson.D{{Key: c.op, Value: parts}}, nil
	}

	ft, err := c.fieldType(t)
	if err != nil {
		return nil, err
	}

	var expr bson.D
	switch c.op {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		if !compatibleOrElem(ft, c.value) {
			return nil, errorf(c.op, c.field, "value of type "+typeName(c.value)+" is not assignable to "+ft.String())
		}
		expr = bson.D{{Key: c.op, Value: c.value}}
	case "$in", "$nin":
		arr, ok := toArray(c.value)
		if !ok {
			return nil, errorf(c.op, c.field, "values must be a slice, got "+typeName(c.value))
		}
		for _, v := range arr {
			if !compatibleOrElem(ft, v) {
				return nil, errorf(c.op, c.field, "value of type "+typeName(v)+" is not assignable to "+ft.String())
			}
		}
		expr = bson.D{{Key: c.op, Value: arr}}
	case "$exists":
		expr = bson.D{{Key: c.op, Value: c.value}}
	case "$elemMatch":
		et, ok := elemType(ft)
		if !ok {
			return nil, errorf(c.op, c.field, "is not an array")
		}
		sub, err := c.subs[0].compile(et)
		if err != nil {
			return nil, err
		}
		expr = bson.D{{Key: c.op, Value: sub}}
	default:
		return nil, errorf(c.op, c.field, "unsupported operator")
	}
	if c.field == "" {
		return expr, nil
	}
	return bson.D{{Key: c.field, Value: expr}}, nil
}

// fieldType resuelve el campo; "" refiere al propio valor (elementos escalares de un array).
func (c Cond) fieldType(t reflect.Type) (reflect.Type, error) {
	if c.field == "" {
		if deref(t).Kind() == reflect.Struct && !isLeaf(deref(t)) {
			return nil, errorf(c.op, "", "field is required on documents")
		}
		return t, nil
	}
	ft, err := resolve(t, c.field)
	if err != nil {
		return nil, withOp(err, c.op)
	}
	return ft, nil
}

// compatibleOrElem acepta valores del tipo del campo o, si es array, del tipo de elemento.
func compatibleOrElem(ft reflect.Type, v any) bool {
	if compatible(ft, v) {
		return true
	}
	if et, ok := elemType(ft); ok && isArray(ft) {
		return compatible(et, v)
	}
	return false
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

func errorf(op, field, reason string) error {
	return &repository.ValidationError{Op: op, Field: field, Reason: reason}
}

func withOp(err error, op string) error {
	if ve, ok := err.(*repository.ValidationError); ok && ve.Op == "" {
		cp := *ve
		cp.Op = op
		return &cp
	}
	return err
}
