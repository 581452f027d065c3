// Package query construye descriptores tipados de filtro, orden, update y proyección
// para colecciones MongoDB.
//
// # Design Decisions
//
//   - Inmutable: cada llamada retorna un Query nuevo, nunca muta el receptor.
//   - Validación temprana: los paths se validan contra los tags bson del tipo T
//     al construir; un campo inexistente o un valor no asignable deja un
//     *repository.ValidationError en Err() y la query no llega al store.
//   - Composición: Where/Eq/In/Match se combinan con AND; Or/Nor están disponibles
//     como predicados (Cond) y se pasan a Where.
//
// # Usage
//
//	q := query.New[*identity.User]().
//	    Eq("normalizedEmail", "A@X.COM").
//	    Where(query.Or(query.Eq("state", entity.StateActive), query.Exists("updateTime", false))).
//	    Sort("createTime", true).
//	    Limit(10)
//	if err := q.Err(); err != nil { ... }
//
// Updates:
//
//	q := query.New[*identity.User]().
//	    Eq("_id", id).
//	    AddToSet("logins", login).
//	    Set("securityStamp", stamp)
package query
