package memstore

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toDoc pasa v por el codec del driver y retorna su forma canónica
// (bson.D, bson.A, int32/int64/float64, DateTime, ObjectID...).
func toDoc(v any) (bson.D, error) {
	if d, ok := v.(bson.D); ok && d == nil {
		return bson.D{}, nil
	}
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func cloneDoc(d bson.D) bson.D {
	out, err := toDoc(d)
	if err != nil {
		// un bson.D canónico siempre re-serializa
		panic(err)
	}
	return out
}

// rank sigue el orden de comparación de tipos de BSON.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 1
	case int32, int64, float64, primitive.Decimal128:
		return rankNumber
	case string, primitive.Symbol:
		return 3
	case bson.D, bson.M:
		return 4
	case bson.A:
		return 5
	case primitive.Binary:
		return 6
	case primitive.ObjectID:
		return 7
	case bool:
		return 8
	case primitive.DateTime:
		return 9
	case primitive.Timestamp:
		return 10
	}
	return 11
}

const rankNumber = 2

// addNumbers suma dos números BSON. Enteros quedan enteros (int32 promueve a int64
// al sumar con int64); cualquier float convierte el resultado a float64.
func addNumbers(a, b any) any {
	switch x := a.(type) {
	case int32:
		switch y := b.(type) {
		case int32:
			return x + y
		case int64:
			return int64(x) + y
		}
	case int64:
		switch y := b.(type) {
		case int32:
			return x + int64(y)
		case int64:
			return x + y
		}
	}
	return toFloat(a) + toFloat(b)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case primitive.Decimal128:
		f, _ := strconv.ParseFloat(n.String(), 64)
		return f
	}
	return 0
}

// compare retorna -1, 0, 1 siguiendo el orden de BSON.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch x := a.(type) {
	case nil:
		return 0
	case int32, int64, float64, primitive.Decimal128:
		fa, fb := toFloat(x), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, fmt.Sprint(b))
	case bson.D:
		y, ok := b.(bson.D)
		if !ok {
			return 0
		}
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := strings.Compare(x[i].Key, y[i].Key); c != 0 {
				return c
			}
			if c := compare(x[i].Value, y[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(len(x), len(y))
	case bson.A:
		y := b.(bson.A)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := compare(x[i], y[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(x), len(y))
	case primitive.Binary:
		return bytes.Compare(x.Data, b.(primitive.Binary).Data)
	case primitive.ObjectID:
		y := b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:])
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case primitive.DateTime:
		return cmpInt(int64(x), int64(b.(primitive.DateTime)))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpInt[N int | int64](a, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func equal(a, b any) bool { return compare(a, b) == 0 }

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int32, int64, float64:
		return toFloat(x) != 0
	}
	return v != nil
}

func split(path string) []string { return strings.Split(path, ".") }
