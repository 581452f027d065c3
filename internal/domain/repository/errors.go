package repository

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	// Los accesores de lectura no lo usan: "no encontrado" es un resultado vacío.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (ej: duplicado, constraint violation).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoDatabase indica que no hay base de datos configurada.
	ErrNoDatabase = errors.New("no database configured")
)

// ValidationError describe un descriptor de query mal construido
// (campo inexistente, tipo no asignable, proyección ambigua).
// Se detecta al construir la query, nunca después de ir al store.
type ValidationError struct {
	Op     string // operación del builder (eq, set, include...)
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("query: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString("field ")
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Reason)
	return b.String()
}

// Is permite errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// StoreError envuelve un fallo del store (conectividad, constraint, serialización).
// Nunca se reintenta internamente.
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, ErrConflict) para duplicate key.
func (e *StoreError) Is(target error) bool {
	return target == ErrConflict && mongo.IsDuplicateKeyError(e.Err)
}

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNoDatabase verifica si el error es ErrNoDatabase.
func IsNoDatabase(err error) bool {
	return errors.Is(err, ErrNoDatabase)
}

// IsValidation verifica si el error viene de la construcción de una query.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStore verifica si el error viene del store.
func IsStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsDuplicateKey verifica si el store rechazó la escritura por clave duplicada.
func IsDuplicateKey(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return mongo.IsDuplicateKeyError(se.Err)
	}
	return mongo.IsDuplicateKeyError(err)
}
