package password

import (
	"strings"
	"unicode"
)

// DefaultPolicy es la política aplicada al setear contraseñas desde el store.
var DefaultPolicy = Policy{MinLength: 8, RequireLower: true, RequireDigit: true}

// PolicyError lista los requisitos incumplidos.
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string {
	return "password: policy not met: " + strings.Join(e.Reasons, ",")
}

// Check es Validate en forma de error.
func (p Policy) Check(s string) error {
	if ok, reasons := p.Validate(s); !ok {
		return &PolicyError{Reasons: reasons}
	}
	return nil
}

type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

func (p Policy) Validate(s string) (ok bool, reasons []string) {
	if len([]rune(s)) < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, "missing_upper")
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, "missing_lower")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, "missing_symbol")
	}
	return len(reasons) == 0, reasons
}
