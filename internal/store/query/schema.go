package query

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// schema mapea nombres bson → tipo Go para un struct. Se calcula una vez por tipo.
type schema struct {
	fields map[string]reflect.Type
}

var schemas sync.Map // reflect.Type → *schema

var (
	timeType     = reflect.TypeOf(time.Time{})
	objectIDType = reflect.TypeOf(primitive.ObjectID{})
	dateTimeType = reflect.TypeOf(primitive.DateTime(0))
	decimalType  = reflect.TypeOf(primitive.Decimal128{})
	docDType     = reflect.TypeOf(bson.D{})
	docMType     = reflect.TypeOf(bson.M{})
)

func schemaOf(t reflect.Type) *schema {
	if s, ok := schemas.Load(t); ok {
		return s.(*schema)
	}
	s := &schema{fields: make(map[string]reflect.Type)}
	collectFields(t, s.fields)
	actual, _ := schemas.LoadOrStore(t, s)
	return actual.(*schema)
}

// collectFields sigue las reglas del codec de structs del driver:
// nombre = tag bson o el nombre del campo en minúsculas, "-" se ignora,
// ",inline" aplana el struct embebido.
func collectFields(t reflect.Type, out map[string]reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" && !sf.Anonymous {
			continue
		}
		name, opts, _ := strings.Cut(sf.Tag.Get("bson"), ",")
		if name == "-" {
			continue
		}
		if hasOpt(opts, "inline") {
			ft := deref(sf.Type)
			if ft.Kind() == reflect.Struct {
				collectFields(ft, out)
			}
			continue
		}
		if sf.PkgPath != "" {
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		out[name] = sf.Type
	}
}

func hasOpt(opts, want string) bool {
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == want {
			return true
		}
	}
	return false
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// isLeaf indica tipos struct/array que el driver serializa como valor escalar.
func isLeaf(t reflect.Type) bool {
	switch t {
	case timeType, objectIDType, dateTimeType, decimalType:
		return true
	}
	return false
}

func isDocType(t reflect.Type) bool {
	return t == docDType || t == docMType
}

// isArray reporta si el campo se serializa como array BSON ([]byte es binary).
func isArray(t reflect.Type) bool {
	t = deref(t)
	switch t.Kind() {
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8 && t != docDType
	case reflect.Array:
		return !isLeaf(t) && t.Elem().Kind() != reflect.Uint8
	}
	return false
}

// resolve valida un path bson (a.b.c) contra t y retorna el tipo declarado del último segmento.
// Los arrays se atraviesan implícitamente (roles.name) o por índice (roles.0.name, roles.$).
func resolve(t reflect.Type, path string) (reflect.Type, error) {
	if path == "" {
		return nil, errorf("", path, "empty field path")
	}
	cur := t
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		if seg == "" {
			return nil, errorf("", path, "empty path segment")
		}
		base := deref(cur)
		if isArray(base) {
			if seg == "$" || isIndex(seg) {
				cur = base.Elem()
				continue
			}
			base = deref(base.Elem())
		}
		switch {
		case base.Kind() == reflect.Interface:
			return base, nil
		case isDocType(base):
			return reflect.TypeOf((*any)(nil)).Elem(), nil
		case base.Kind() == reflect.Map:
			if base.Key().Kind() != reflect.String {
				return nil, errorf("", path, "map key is not a string")
			}
			cur = base.Elem()
		case base.Kind() == reflect.Struct && !isLeaf(base):
			ft, ok := schemaOf(base).fields[seg]
			if !ok {
				return nil, errorf("", path, "unknown field "+strconv.Quote(seg)+" in "+base.String())
			}
			cur = ft
		default:
			return nil, errorf("", path, strings.Join(segs[:i], ".")+" is not a document")
		}
	}
	return cur, nil
}

func isIndex(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// elemType retorna el tipo de elemento de un campo array.
func elemType(t reflect.Type) (reflect.Type, bool) {
	if !isArray(t) {
		if k := deref(t).Kind(); k == reflect.Interface {
			return deref(t), true
		}
		return nil, false
	}
	return deref(t).Elem(), true
}

// compatible verifica que v pueda serializarse en un campo de tipo ft.
func compatible(ft reflect.Type, v any) bool {
	if v == nil {
		switch ft.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
			return true
		}
		return false
	}
	vt := reflect.TypeOf(v)
	if ft.Kind() == reflect.Interface {
		return vt.Implements(ft) || ft.NumMethod() == 0
	}
	if vt.AssignableTo(ft) {
		return true
	}
	if vt.Kind() == reflect.Pointer && vt.Elem().AssignableTo(ft) {
		return true
	}
	if ft.Kind() == reflect.Pointer {
		return compatible(ft.Elem(), v)
	}
	switch {
	case isDocType(vt):
		// documento crudo: vale para structs y mapas
		return (ft.Kind() == reflect.Struct && !isLeaf(ft)) || ft.Kind() == reflect.Map
	case ft == dateTimeType || ft == timeType:
		return vt == timeType || vt == dateTimeType
	case isNumeric(ft.Kind()) && isNumeric(vt.Kind()):
		return true
	case ft.Kind() == vt.Kind() && ft.Kind() != reflect.Struct:
		// tipos nombrados (entity.State ← "Active")
		return vt.ConvertibleTo(ft)
	case isArray(ft) && isArray(vt):
		ev := reflect.ValueOf(v)
		fe := deref(ft).Elem()
		for i := 0; i < ev.Len(); i++ {
			if !compatible(fe, ev.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// toArray convierte un slice/array arbitrario en bson.A.
func toArray(values any) (bson.A, bool) {
	if values == nil {
		return nil, false
	}
	if a, ok := values.(bson.A); ok {
		return a, true
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make(bson.A, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
