// Package entity define el modelo base compartido por todos los documentos persistidos.
package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dropDatabas3/docstore/internal/domain/repository"
)

// State es el estado de ciclo de vida de un documento.
type State string

const (
	StateActive   State = "Active"
	StateArchived State = "Archived"
	StateNone     State = "None"
)

// Nombres bson de los campos base. Los stores los usan para armar queries.
const (
	FieldID         = "_id"
	FieldCreateTime = "createTime"
	FieldUpdateTime = "updateTime"
	FieldState      = "state"
)

// Base se embebe (inline) en cada documento.
type Base struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreateTime time.Time          `bson:"createTime" json:"createTime"`
	UpdateTime *time.Time         `bson:"updateTime,omitempty" json:"updateTime,omitempty"`
	State      State              `bson:"state" json:"state"`
}

// Meta retorna el puntero a los campos base. Al estar embebido, *T lo promueve.
func (b *Base) Meta() *Base { return b }

// IDHex retorna el ID como string hex ("" si todavía no fue insertado).
func (b *Base) IDHex() string {
	if b.ID.IsZero() {
		return ""
	}
	return b.ID.Hex()
}

// Entity es la restricción de los repositorios genéricos.
// Se instancia con tipos puntero: Repository[*identity.User].
type Entity interface {
	Meta() *Base
}

// Now retorna la hora actual en UTC truncada a milisegundos (precisión de BSON datetime),
// así lo que se escribe se lee igual.
func Now() time.Time {
	return Truncate(time.Now())
}

// Truncate normaliza un timestamp a la precisión almacenable.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// ParseID convierte un ID hex en ObjectID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, &repository.ValidationError{Field: FieldID, Reason: "invalid object id " + quote(id)}
	}
	return oid, nil
}

// ParseIDs convierte una lista de IDs; falla con el primero inválido.
func ParseIDs(ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := ParseID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, nil
}

func quote(s string) string { return "\"" + s + "\"" }
