package memstore

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// getPath lee el valor exacto en path, sin expandir arrays.
func getPath(v any, segs []string) (any, bool) {
	for _, s := range segs {
		switch t := v.(type) {
		case bson.D:
			found := false
			for _, e := range t {
				if e.Key == s {
					v, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		case bson.A:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			v = t[i]
		default:
			return nil, false
		}
	}
	return v, true
}

// setPath escribe val en path creando documentos intermedios.
func setPath(v any, segs []string, val any) (any, error) {
	if len(segs) == 0 {
		return val, nil
	}
	switch t := v.(type) {
	case nil:
		return setPath(bson.D{}, segs, val)
	case bson.D:
		for i, e := range t {
			if e.Key == segs[0] {
				nv, err := setPath(e.Value, segs[1:], val)
				if err != nil {
					return nil, err
				}
				t[i].Value = nv
				return t, nil
			}
		}
		nv, err := setPath(nil, segs[1:], val)
		if err != nil {
			return nil, err
		}
		return append(t, bson.E{Key: segs[0], Value: nv}), nil
	case bson.A:
		i, err := strconv.Atoi(segs[0])
		if err != nil || i < 0 {
			return nil, fmt.Errorf("cannot create field %q in array", segs[0])
		}
		for len(t) <= i {
			t = append(t, nil)
		}
		nv, err := setPath(t[i], segs[1:], val)
		if err != nil {
			return nil, err
		}
		t[i] = nv
		return t, nil
	}
	return nil, fmt.Errorf("cannot create field %q in element of type %T", segs[0], v)
}

// unsetPath quita path del documento; a través de arrays se aplica a cada elemento.
func unsetPath(v any, segs []string) any {
	switch t := v.(type) {
	case bson.D:
		for i, e := range t {
			if e.Key != segs[0] {
				continue
			}
			if len(segs) == 1 {
				return append(t[:i:i], t[i+1:]...)
			}
			t[i].Value = unsetPath(e.Value, segs[1:])
			return t
		}
	case bson.A:
		for i := range t {
			t[i] = unsetPath(t[i], segs)
		}
	}
	return v
}

// applyUpdate aplica un documento de update ($set, $inc, $addToSet, $push, $pull, $pullAll).
func applyUpdate(doc bson.D, update bson.D) (bson.D, error) {
	if len(update) == 0 {
		return nil, fmt.Errorf("update document must not be empty")
	}
	var cur any = doc
	for _, opEntry := range update {
		fields, ok := opEntry.Value.(bson.D)
		if !ok {
			return nil, fmt.Errorf("%s needs an object", opEntry.Key)
		}
		for _, f := range fields {
			if f.Key == "_id" {
				return nil, fmt.Errorf("performing an update on the path '_id' would modify the immutable field '_id'")
			}
			segs := split(f.Key)
			var err error
			switch opEntry.Key {
			case "$set":
				cur, err = setPath(cur, segs, f.Value)
			case "$inc":
				cur, err = inc(cur, segs, f.Value)
			case "$addToSet", "$push", "$pull", "$pullAll":
				cur, err = arrayOp(cur, opEntry.Key, segs, f.Value)
			default:
				err = fmt.Errorf("unknown modifier: %s", opEntry.Key)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return cur.(bson.D), nil
}

func inc(doc any, segs []string, arg any) (any, error) {
	if rank(arg) != rankNumber {
		return nil, fmt.Errorf("cannot increment with non-numeric argument")
	}
	existing, found := getPath(doc, segs)
	if !found || existing == nil {
		return setPath(doc, segs, arg)
	}
	if rank(existing) != rankNumber {
		return nil, fmt.Errorf("cannot apply $inc to a value of non-numeric type in %s", strings.Join(segs, "."))
	}
	return setPath(doc, segs, addNumbers(existing, arg))
}

func arrayOp(doc any, op string, segs []string, arg any) (any, error) {
	existing, found := getPath(doc, segs)
	if !found {
		if op == "$pull" || op == "$pullAll" {
			return doc, nil
		}
		existing = bson.A{}
	}
	arr, ok := existing.(bson.A)
	if !ok {
		return nil, fmt.Errorf("cannot apply %s to non-array field %s", op, strings.Join(segs, "."))
	}
	arr = append(bson.A(nil), arr...)

	switch op {
	case "$addToSet", "$push":
		for _, it := range eachItems(arg) {
			if op == "$addToSet" && contains(arr, it) {
				continue
			}
			arr = append(arr, it)
		}
	case "$pullAll":
		list, ok := arg.(bson.A)
		if !ok {
			return nil, fmt.Errorf("$pullAll requires an array argument")
		}
		arr = filter(arr, func(el any) (bool, error) { return contains(list, el), nil })
	case "$pull":
		var err error
		arr, err = filterErr(arr, func(el any) (bool, error) { return pullMatches(el, arg) })
		if err != nil {
			return nil, err
		}
	}
	return setPath(doc, segs, arr)
}

func eachItems(arg any) bson.A {
	if d, ok := arg.(bson.D); ok && len(d) == 1 && d[0].Key == "$each" {
		if list, ok := d[0].Value.(bson.A); ok {
			return list
		}
	}
	return bson.A{arg}
}

func pullMatches(el any, cond any) (bool, error) {
	sub, ok := cond.(bson.D)
	if !ok {
		return equal(el, cond), nil
	}
	if _, isOps := isOperatorDoc(sub); isOps {
		return elemMatches(el, sub)
	}
	if _, isDoc := el.(bson.D); isDoc {
		return matches(el, sub)
	}
	return equal(el, cond), nil
}

func contains(arr bson.A, v any) bool {
	for _, el := range arr {
		if equal(el, v) {
			return true
		}
	}
	return false
}

func filter(arr bson.A, drop func(any) (bool, error)) bson.A {
	out, _ := filterErr(arr, drop)
	return out
}

func filterErr(arr bson.A, drop func(any) (bool, error)) (bson.A, error) {
	out := make(bson.A, 0, len(arr))
	for _, el := range arr {
		d, err := drop(el)
		if err != nil {
			return nil, err
		}
		if !d {
			out = append(out, el)
		}
	}
	return out, nil
}

// project aplica una proyección de inclusión o exclusión.
func project(doc bson.D, proj bson.D) bson.D {
	if len(proj) == 0 {
		return doc
	}
	include := false
	keepID := true
	for _, e := range proj {
		if e.Key == "_id" {
			keepID = truthy(e.Value)
			continue
		}
		if truthy(e.Value) {
			include = true
		}
	}

	if !include {
		var out any = doc
		for _, e := range proj {
			if !truthy(e.Value) {
				out = unsetPath(out, split(e.Key))
			}
		}
		return out.(bson.D)
	}

	var out any = bson.D{}
	if id, ok := getPath(doc, []string{"_id"}); ok && keepID {
		out = bson.D{{Key: "_id", Value: id}}
	}
	for _, e := range proj {
		if e.Key == "_id" || !truthy(e.Value) {
			continue
		}
		segs := split(e.Key)
		if v, ok := getPath(doc, segs); ok {
			out, _ = setPath(out, segs, v)
		}
	}
	return out.(bson.D)
}
