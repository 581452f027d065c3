package identity

import (
	"fmt"
	"strings"
)

// Códigos de error de dominio.
const (
	CodeDuplicateRoleName = "DuplicateRoleName"
	CodeDuplicateEmail    = "DuplicateEmail"
	CodeRoleNotFound      = "RoleNotFound"
	CodeUserNotFound      = "UserNotFound"
	CodeInvalidRoleName   = "InvalidRoleName"
	CodeInvalidEmail      = "InvalidEmail"
)

// Error es un fallo de dominio (conflicto, no encontrado), no de infraestructura.
type Error struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Result es el resultado de una operación de escritura del store de identidad.
// Los fallos del store viajan como error; los de dominio como Result fallido.
type Result struct {
	Succeeded bool    `json:"succeeded"`
	Errors    []Error `json:"errors,omitempty"`
}

// Success es el resultado exitoso.
func Success() Result { return Result{Succeeded: true} }

// Failed arma un resultado fallido.
func Failed(errs ...Error) Result { return Result{Errors: errs} }

func fail(code, format string, args ...any) Result {
	return Failed(Error{Code: code, Description: fmt.Sprintf(format, args...)})
}

// Has reporta si el resultado contiene el código dado.
func (r Result) Has(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (r Result) String() string {
	if r.Succeeded {
		return "Succeeded"
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.Code)
	}
	return "Failed: " + strings.Join(parts, ",")
}
