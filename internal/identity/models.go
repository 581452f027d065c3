package identity

import (
	"strings"
	"time"

	"github.com/dropDatabas3/docstore/internal/domain/entity"
)

// Tipos de entidad; el cliente mongo los mapea a nombres de colección.
const (
	KindUser = "user"
	KindRole = "role"
)

// Nombres de colección por defecto.
const (
	DefaultUserCollection = "User"
	DefaultRoleCollection = "Role"
)

// Normalize es la forma canónica de emails, nombres de usuario y de rol.
func Normalize(s string) string { return strings.ToUpper(s) }

// Sex se persiste como string.
type Sex string

const (
	SexUndefined Sex = "UNDEFINED"
	SexMale      Sex = "MALE"
	SexFemale    Sex = "FEMALE"
)

// Role es un rol definido en el sistema.
type Role struct {
	entity.Base    `bson:",inline"`
	Name           string `bson:"name" json:"name"`
	NormalizedName string `bson:"normalizedName" json:"normalizedName"`
}

// User es el documento de usuario.
// Los arrays llevan omitempty: un array vacío no se persiste como null,
// así $addToSet/$push posteriores crean el campo.
type User struct {
	entity.Base        `bson:",inline"`
	FirstName          string      `bson:"firstName" json:"firstName"`
	LastName           string      `bson:"lastName" json:"lastName"`
	UserName           string      `bson:"userName" json:"userName"`
	NormalizedUserName string      `bson:"normalizedUserName" json:"-"`
	Sex                Sex         `bson:"sex" json:"sex"`
	Email              string      `bson:"email" json:"email"`
	NormalizedEmail    string      `bson:"normalizedEmail" json:"-"`
	EmailConfirmed     bool        `bson:"emailConfirmed" json:"emailConfirmed"`
	Blocked            bool        `bson:"blocked" json:"blocked"`
	BlockReason        string      `bson:"blockReason,omitempty" json:"blockReason,omitempty"`
	FailedLoginCount   int         `bson:"failedLoginCount" json:"-"`
	Image              *UserImage  `bson:"image,omitempty" json:"image,omitempty"`
	Phones             []UserPhone `bson:"phones,omitempty" json:"phones,omitempty"`
	Claims             []Claim     `bson:"claims,omitempty" json:"-"`
	Tokens             []UserToken `bson:"tokens,omitempty" json:"-"`
	Logins             []Login     `bson:"logins,omitempty" json:"-"`
	Roles              []UserRole  `bson:"roles,omitempty" json:"roles,omitempty"`
	PasswordHash       string      `bson:"passwordHash,omitempty" json:"-"`
	SecurityStamp      string      `bson:"securityStamp,omitempty" json:"-"`
	TwoFactorEnabled   bool        `bson:"twoFactorEnabled" json:"-"`
}

// Claim es un claim asociado al usuario.
type Claim struct {
	Type   string `bson:"type" json:"type"`
	Value  string `bson:"value" json:"value"`
	Issuer string `bson:"issuer,omitempty" json:"issuer,omitempty"`
}

// Login es una identidad externa (proveedor + clave).
type Login struct {
	Provider    string `bson:"provider" json:"provider"`
	ProviderKey string `bson:"providerKey" json:"providerKey"`
	DisplayName string `bson:"displayName,omitempty" json:"displayName,omitempty"`
}

// UserRole es la copia desnormalizada del rol dentro del usuario.
type UserRole struct {
	Name           string    `bson:"name" json:"name"`
	NormalizedName string    `bson:"normalizedName" json:"-"`
	CreateTime     time.Time `bson:"createTime" json:"createTime"`
}

// UserToken es un token emitido al usuario (refresh, reset, etc).
type UserToken struct {
	Issuer     string     `bson:"issuer" json:"issuer"`
	Value      string     `bson:"value" json:"value"`
	CreateTime time.Time  `bson:"createTime" json:"createTime"`
	ExpireTime *time.Time `bson:"expireTime,omitempty" json:"expireTime,omitempty"`
}

type UserImage struct {
	URL      string `bson:"url" json:"url"`
	Provider string `bson:"provider,omitempty" json:"provider,omitempty"`
}

type UserPhone struct {
	Number    string `bson:"number" json:"number"`
	Confirmed bool   `bson:"confirmed" json:"confirmed"`
}

// Profile son los campos que Update reescribe.
type Profile struct {
	FirstName string
	LastName  string
	Sex       Sex
	Image     *UserImage
	Phones    []UserPhone
}

// RoleNames retorna los nombres de los roles del usuario.
func (u *User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, r.Name)
	}
	return out
}
