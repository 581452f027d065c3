package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - STORE
// =================================================================================

// Collection crea un campo para la colección MongoDB.
func Collection(v string) zap.Field {
	return zap.String("collection", v)
}

// Database crea un campo para la base de datos.
func Database(v string) zap.Field {
	return zap.String("database", v)
}

// Driver crea un campo para el driver de storage (mongo, memory).
func Driver(v string) zap.Field {
	return zap.String("driver", v)
}

// Matched crea un campo para documentos matcheados por un update/replace.
func Matched(v int64) zap.Field {
	return zap.Int64("matched", v)
}

// Modified crea un campo para documentos modificados.
func Modified(v int64) zap.Field {
	return zap.Int64("modified", v)
}

// Duration crea un campo para la duración de la operación.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - IDENTITY
// =================================================================================

// UserID crea un campo para el ID del usuario.
func UserID(v string) zap.Field {
	return zap.String("user_id", v)
}

// RoleID crea un campo para el ID del rol.
func RoleID(v string) zap.Field {
	return zap.String("role_id", v)
}

// RoleName crea un campo para el nombre de un rol.
func RoleName(v string) zap.Field {
	return zap.String("role", v)
}

// Email crea un campo para el email (usar con cuidado en prod).
func Email(v string) zap.Field {
	return zap.String("email", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// ID crea un campo genérico para un ID.
func ID(v string) zap.Field {
	return zap.String("id", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}
