package memstore

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// lookup retorna los valores en path. Los arrays intermedios se expanden
// (roles.name sobre [{name:a},{name:b}] da [a b]); un segmento numérico indexa.
func lookup(v any, segs []string) []any {
	if len(segs) == 0 {
		return []any{v}
	}
	switch t := v.(type) {
	case bson.D:
		for _, e := range t {
			if e.Key == segs[0] {
				return lookup(e.Value, segs[1:])
			}
		}
	case bson.A:
		if i, err := strconv.Atoi(segs[0]); err == nil {
			if i >= 0 && i < len(t) {
				return lookup(t[i], segs[1:])
			}
			return nil
		}
		var out []any
		for _, el := range t {
			if d, ok := el.(bson.D); ok {
				out = append(out, lookup(d, segs)...)
			}
		}
		return out
	}
	return nil
}

// expand agrega los elementos de los valores que son arrays.
func expand(vals []any) []any {
	out := make([]any, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
		if a, ok := v.(bson.A); ok {
			out = append(out, a...)
		}
	}
	return out
}

// matches evalúa un filtro sobre target. target suele ser un documento;
// dentro de $elemMatch puede ser un elemento escalar.
func matches(target any, filter bson.D) (bool, error) {
	for _, e := range filter {
		var ok bool
		var err error
		switch {
		case e.Key == "$and" || e.Key == "$or" || e.Key == "$nor":
			ok, err = logical(target, e.Key, e.Value)
		case strings.HasPrefix(e.Key, "$"):
			ok, err = matchOp([]any{target}, e.Key, e.Value)
		default:
			ok, err = matchCond(lookup(target, split(e.Key)), e.Value)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func logical(target any, op string, v any) (bool, error) {
	parts, ok := v.(bson.A)
	if !ok || len(parts) == 0 {
		return false, fmt.Errorf("%s must be a nonempty array", op)
	}
	for _, p := range parts {
		sub, ok := p.(bson.D)
		if !ok {
			return false, fmt.Errorf("%s entries must be documents", op)
		}
		m, err := matches(target, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !m:
			return false, nil
		case op == "$or" && m:
			return true, nil
		case op == "$nor" && m:
			return false, nil
		}
	}
	return op != "$or", nil
}

func isOperatorDoc(v any) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

// matchCond aplica {campo: cond}; cond es {$op: arg, ...} o un valor (igualdad).
func matchCond(vals []any, cond any) (bool, error) {
	ops, ok := isOperatorDoc(cond)
	if !ok {
		return anyEqual(vals, cond), nil
	}
	for _, e := range ops {
		m, err := matchOp(vals, e.Key, e.Value)
		if err != nil || !m {
			return false, err
		}
	}
	return true, nil
}

func anyEqual(vals []any, want any) bool {
	if len(vals) == 0 {
		return want == nil
	}
	for _, v := range expand(vals) {
		if equal(v, want) {
			return true
		}
	}
	return false
}

func matchOp(vals []any, op string, arg any) (bool, error) {
	switch op {
	case "$eq":
		return anyEqual(vals, arg), nil
	case "$ne":
		return !anyEqual(vals, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, v := range expand(vals) {
			if rank(v) != rank(arg) {
				continue
			}
			c := compare(v, arg)
			if op == "$gt" && c > 0 || op == "$gte" && c >= 0 || op == "$lt" && c < 0 || op == "$lte" && c <= 0 {
				return true, nil
			}
		}
		return false, nil
	case "$in", "$nin":
		list, ok := arg.(bson.A)
		if !ok {
			return false, fmt.Errorf("%s needs an array", op)
		}
		in := false
		for _, want := range list {
			if anyEqual(vals, want) {
				in = true
				break
			}
		}
		return in == (op == "$in"), nil
	case "$exists":
		return (len(vals) > 0) == truthy(arg), nil
	case "$elemMatch":
		sub, ok := arg.(bson.D)
		if !ok {
			return false, fmt.Errorf("$elemMatch needs an object")
		}
		for _, v := range vals {
			arr, ok := v.(bson.A)
			if !ok {
				continue
			}
			for _, el := range arr {
				m, err := elemMatches(el, sub)
				if err != nil {
					return false, err
				}
				if m {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

// elemMatches evalúa el sub-filtro de $elemMatch / $pull sobre un elemento.
func elemMatches(el any, sub bson.D) (bool, error) {
	if ops, ok := isOperatorDoc(sub); ok && !isLogical(ops) {
		return matchCond([]any{el}, ops)
	}
	return matches(el, sub)
}

func isLogical(d bson.D) bool {
	for _, e := range d {
		switch e.Key {
		case "$and", "$or", "$nor":
			return true
		}
	}
	return false
}
