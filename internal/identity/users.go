package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/dropDatabas3/docstore/internal/domain/entity"
	"github.com/dropDatabas3/docstore/internal/domain/repository"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
	"github.com/dropDatabas3/docstore/internal/security/password"
	"github.com/dropDatabas3/docstore/internal/store/mongo"
	"github.com/dropDatabas3/docstore/internal/store/query"
)

// Campos bson de User.
const (
	fieldFirstName          = "firstName"
	fieldLastName           = "lastName"
	fieldUserName           = "userName"
	fieldNormalizedUserName = "normalizedUserName"
	fieldSex                = "sex"
	fieldEmail              = "email"
	fieldNormalizedEmail    = "normalizedEmail"
	fieldEmailConfirmed     = "emailConfirmed"
	fieldBlocked            = "blocked"
	fieldBlockReason        = "blockReason"
	fieldFailedLoginCount   = "failedLoginCount"
	fieldImage              = "image"
	fieldPhones             = "phones"
	fieldClaims             = "claims"
	fieldTokens             = "tokens"
	fieldLogins             = "logins"
	fieldRoles              = "roles"
	fieldPasswordHash       = "passwordHash"
	fieldSecurityStamp      = "securityStamp"
	fieldTwoFactorEnabled   = "twoFactorEnabled"

	fieldRoleEntryNormalized = "roles.normalizedName"
)

// UserProjection es la proyección por defecto de las lecturas de User.
func UserProjection() query.Query[*User] {
	return query.New[*User]().Exclude(
		fieldBlockReason, fieldClaims, fieldFailedLoginCount, fieldLogins, fieldRoles,
		fieldSecurityStamp, fieldTokens, fieldTwoFactorEnabled, fieldPasswordHash,
	)
}

// UserStore administra la colección de usuarios.
type UserStore struct {
	repo   *mongo.Repository[*User]
	log    *zap.Logger
	now    func() time.Time
	hash   password.Params
	policy password.Policy
}

// NewUserStore arma el store sobre coll con la proyección por defecto de usuarios.
func NewUserStore(coll mongo.Collection, opts ...Option) *UserStore {
	o := buildOptions(opts)
	ropts := append([]mongo.Option{mongo.WithDefaultProjection(UserProjection())}, o.repo...)
	return &UserStore{
		repo:   mongo.NewRepository[*User](coll, ropts...),
		log:    o.log.With(logger.Component("users")),
		now:    entity.Now,
		hash:   o.hash,
		policy: o.policy,
	}
}

// Repository expone el repositorio para consultas ad hoc.
func (s *UserStore) Repository() *mongo.Repository[*User] { return s.repo }

// EnsureIndexes crea los índices de la colección de usuarios.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	return s.repo.EnsureIndexes(ctx,
		mongo.Index{Name: "normalizedEmail_1", Keys: bson.D{{Key: fieldNormalizedEmail, Value: 1}}, Unique: true},
		mongo.Index{Name: "normalizedUserName_1", Keys: bson.D{{Key: fieldNormalizedUserName, Value: 1}}},
		mongo.Index{Name: "logins_provider_key", Keys: bson.D{{Key: "logins.provider", Value: 1}, {Key: "logins.providerKey", Value: 1}}},
		mongo.Index{Name: "roles_normalizedName_1", Keys: bson.D{{Key: fieldRoleEntryNormalized, Value: 1}}},
	)
}

func (s *UserStore) byID(u *User) query.Query[*User] {
	return s.repo.Query().Eq(entity.FieldID, u.ID)
}

func requireID(op string, u *User) error {
	if u == nil || u.ID.IsZero() {
		return &repository.ValidationError{Op: op, Field: entity.FieldID, Reason: "user has no id"}
	}
	return nil
}

// set persiste field = v sobre el usuario.
func (s *UserStore) set(ctx context.Context, u *User, field string, v any) error {
	if err := requireID("$set", u); err != nil {
		return err
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).Set(field, v))
	return err
}

// read relee el usuario con solo los campos dados.
func (s *UserStore) read(ctx context.Context, u *User, fields ...string) (*User, error) {
	if err := requireID("read", u); err != nil {
		return nil, err
	}
	return s.repo.ExecuteQueryFirst(ctx, s.byID(u).Include(fields...))
}

// ─── Usuario ───

// Create inserta el usuario. Falla con DuplicateEmail si el email normalizado
// ya existe; en ese caso no se escribe nada.
func (s *UserStore) Create(ctx context.Context, u *User) (Result, error) {
	if u == nil || u.Email == "" {
		return fail(CodeInvalidEmail, "Email is required"), nil
	}
	if u.NormalizedEmail == "" {
		u.NormalizedEmail = Normalize(u.Email)
	}
	if u.UserName == "" {
		u.UserName = u.Email
	}
	if u.NormalizedUserName == "" {
		u.NormalizedUserName = Normalize(u.UserName)
	}
	if u.Sex == "" {
		u.Sex = SexUndefined
	}
	if u.SecurityStamp == "" {
		u.SecurityStamp = uuid.NewString()
	}

	taken, err := s.repo.AnyBy(ctx, fieldNormalizedEmail, u.NormalizedEmail)
	if err != nil {
		return Result{}, err
	}
	if taken {
		return s.duplicateEmail(u), nil
	}
	if _, err := s.repo.Insert(ctx, u); err != nil {
		if repository.IsDuplicateKey(err) {
			return s.duplicateEmail(u), nil
		}
		return Result{}, err
	}
	s.log.Info("user created", logger.UserID(u.IDHex()), logger.Email(u.Email))
	return Success(), nil
}

func (s *UserStore) duplicateEmail(u *User) Result {
	s.log.Warn("duplicate email", logger.Email(u.Email))
	return fail(CodeDuplicateEmail, "User with email %s already exists", u.Email)
}

// Update persiste los campos de perfil del usuario. El resto del documento
// (credenciales, roles, claims) no se toca.
func (s *UserStore) Update(ctx context.Context, u *User) (Result, error) {
	if u == nil || u.ID.IsZero() {
		return fail(CodeUserNotFound, "User not found"), nil
	}
	q := s.byID(u).
		Set(fieldFirstName, u.FirstName).
		Set(fieldLastName, u.LastName).
		Set(fieldSex, u.Sex).
		Set(fieldImage, u.Image).
		Set(fieldPhones, u.Phones)
	res, err := s.repo.ExecuteUpdate(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if res.Matched == 0 {
		return fail(CodeUserNotFound, "User not found"), nil
	}
	return Success(), nil
}

// UpdateProfile aplica p sobre u y lo persiste.
func (s *UserStore) UpdateProfile(ctx context.Context, u *User, p Profile) (Result, error) {
	if u == nil {
		return fail(CodeUserNotFound, "User not found"), nil
	}
	u.FirstName, u.LastName, u.Image, u.Phones = p.FirstName, p.LastName, p.Image, p.Phones
	if p.Sex != "" {
		u.Sex = p.Sex
	}
	return s.Update(ctx, u)
}

// Delete archiva el usuario (soft delete).
func (s *UserStore) Delete(ctx context.Context, u *User) (Result, error) {
	if u == nil || u.ID.IsZero() {
		return fail(CodeUserNotFound, "User not found"), nil
	}
	res, err := s.repo.DeleteSoftEntity(ctx, u)
	if err != nil {
		return Result{}, err
	}
	if res.Matched == 0 {
		return fail(CodeUserNotFound, "User not found"), nil
	}
	s.log.Info("user archived", logger.UserID(u.IDHex()))
	return Success(), nil
}

// FindByID busca por ID hex. Retorna nil si no existe.
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	oid, err := entity.ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, oid)
}

// FindByName busca por nombre de usuario normalizado.
func (s *UserStore) FindByName(ctx context.Context, userName string) (*User, error) {
	return s.repo.GetBy(ctx, fieldNormalizedUserName, Normalize(userName))
}

// FindByEmail busca por email normalizado.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetBy(ctx, fieldNormalizedEmail, Normalize(email))
}

func (s *UserStore) GetUserID(u *User) string { return u.IDHex() }

func (s *UserStore) GetUserName(u *User) string { return u.UserName }

func (s *UserStore) SetUserName(ctx context.Context, u *User, name string) error {
	if err := s.set(ctx, u, fieldUserName, name); err != nil {
		return err
	}
	u.UserName = name
	return nil
}

func (s *UserStore) GetNormalizedUserName(u *User) string { return u.NormalizedUserName }

func (s *UserStore) SetNormalizedUserName(ctx context.Context, u *User, name string) error {
	if err := s.set(ctx, u, fieldNormalizedUserName, name); err != nil {
		return err
	}
	u.NormalizedUserName = name
	return nil
}

// ─── Logins externos ───

// AddLogin agrega el login si no estaba.
func (s *UserStore) AddLogin(ctx context.Context, u *User, l Login) error {
	if err := requireID("$addToSet", u); err != nil {
		return err
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).AddToSet(fieldLogins, l))
	return err
}

func loginCond(provider, key string) query.Cond {
	return query.And(query.Eq("provider", provider), query.Eq("providerKey", key))
}

// RemoveLogin quita el login del proveedor con esa clave.
func (s *UserStore) RemoveLogin(ctx context.Context, u *User, provider, key string) error {
	if err := requireID("$pull", u); err != nil {
		return err
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).PullWhere(fieldLogins, loginCond(provider, key)))
	return err
}

// GetLogins lee los logins del usuario.
func (s *UserStore) GetLogins(ctx context.Context, u *User) ([]Login, error) {
	got, err := s.read(ctx, u, fieldLogins)
	if err != nil || got == nil {
		return nil, err
	}
	return got.Logins, nil
}

// FindByLogin busca el usuario con ese login externo.
func (s *UserStore) FindByLogin(ctx context.Context, provider, key string) (*User, error) {
	return s.repo.ExecuteQueryFirst(ctx, s.repo.Query().Match(fieldLogins, loginCond(provider, key)))
}

// ─── Claims ───

// GetClaims lee los claims del usuario.
func (s *UserStore) GetClaims(ctx context.Context, u *User) ([]Claim, error) {
	got, err := s.read(ctx, u, fieldClaims)
	if err != nil || got == nil {
		return nil, err
	}
	return got.Claims, nil
}

// AddClaims agrega los claims que no estén ya (igualdad de documento completo).
func (s *UserStore) AddClaims(ctx context.Context, u *User, claims []Claim) error {
	if err := requireID("$addToSet", u); err != nil {
		return err
	}
	if len(claims) == 0 {
		return nil
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).AddToSetEach(fieldClaims, claims))
	return err
}

func claimCond(c Claim) query.Cond {
	return query.And(query.Eq("type", c.Type), query.Eq("value", c.Value))
}

// ReplaceClaim quita los claims con el tipo y valor de old y agrega repl.
// Son dos updates: si el segundo falla, old ya no está.
func (s *UserStore) ReplaceClaim(ctx context.Context, u *User, old, repl Claim) error {
	if err := requireID("$pull", u); err != nil {
		return err
	}
	res, err := s.repo.ExecuteUpdate(ctx, s.byID(u).PullWhere(fieldClaims, claimCond(old)))
	if err != nil || res.Matched == 0 {
		return err
	}
	_, err = s.repo.ExecuteUpdate(ctx, s.byID(u).Push(fieldClaims, repl))
	return err
}

// RemoveClaims quita los claims iguales a alguno de los dados.
func (s *UserStore) RemoveClaims(ctx context.Context, u *User, claims []Claim) error {
	if err := requireID("$pullAll", u); err != nil {
		return err
	}
	if len(claims) == 0 {
		return nil
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).PullAll(fieldClaims, claims))
	return err
}

// GetUsersForClaim retorna los usuarios que tienen un claim con ese tipo y valor.
func (s *UserStore) GetUsersForClaim(ctx context.Context, c Claim) ([]*User, error) {
	return s.repo.ExecuteQuery(ctx, s.repo.Query().Match(fieldClaims, claimCond(c)))
}

// ─── Password ───

func (s *UserStore) SetPasswordHash(ctx context.Context, u *User, hash string) error {
	if err := s.set(ctx, u, fieldPasswordHash, hash); err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (s *UserStore) GetPasswordHash(ctx context.Context, u *User) (string, error) {
	got, err := s.read(ctx, u, fieldPasswordHash)
	if err != nil || got == nil {
		return "", err
	}
	return got.PasswordHash, nil
}

func (s *UserStore) HasPassword(ctx context.Context, u *User) (bool, error) {
	h, err := s.GetPasswordHash(ctx, u)
	return h != "", err
}

// SetPassword valida plain contra la política, lo hashea con argon2id y rota
// el security stamp en el mismo update.
func (s *UserStore) SetPassword(ctx context.Context, u *User, plain string) error {
	if err := requireID("$set", u); err != nil {
		return err
	}
	if err := s.policy.Check(plain); err != nil {
		return err
	}
	hash, err := password.Hash(s.hash, plain)
	if err != nil {
		return err
	}
	stamp := uuid.NewString()
	q := s.byID(u).Set(fieldPasswordHash, hash).Set(fieldSecurityStamp, stamp)
	if _, err := s.repo.ExecuteUpdate(ctx, q); err != nil {
		return err
	}
	u.PasswordHash, u.SecurityStamp = hash, stamp
	return nil
}

// CheckPassword verifica plain contra el hash guardado. Sin hash, false.
func (s *UserStore) CheckPassword(ctx context.Context, u *User, plain string) (bool, error) {
	h, err := s.GetPasswordHash(ctx, u)
	if err != nil || h == "" {
		return false, err
	}
	return password.Verify(plain, h), nil
}

// ─── Email ───

func (s *UserStore) GetEmail(u *User) string { return u.Email }

func (s *UserStore) SetEmail(ctx context.Context, u *User, email string) error {
	if err := s.set(ctx, u, fieldEmail, email); err != nil {
		return err
	}
	u.Email = email
	return nil
}

func (s *UserStore) GetNormalizedEmail(u *User) string { return u.NormalizedEmail }

func (s *UserStore) SetNormalizedEmail(ctx context.Context, u *User, email string) error {
	if err := s.set(ctx, u, fieldNormalizedEmail, email); err != nil {
		return err
	}
	u.NormalizedEmail = email
	return nil
}

func (s *UserStore) GetEmailConfirmed(u *User) bool { return u.EmailConfirmed }

func (s *UserStore) SetEmailConfirmed(ctx context.Context, u *User, confirmed bool) error {
	if err := s.set(ctx, u, fieldEmailConfirmed, confirmed); err != nil {
		return err
	}
	u.EmailConfirmed = confirmed
	return nil
}

// ─── Security stamp / two factor ───

func (s *UserStore) SetSecurityStamp(ctx context.Context, u *User, stamp string) error {
	if err := s.set(ctx, u, fieldSecurityStamp, stamp); err != nil {
		return err
	}
	u.SecurityStamp = stamp
	return nil
}

func (s *UserStore) GetSecurityStamp(ctx context.Context, u *User) (string, error) {
	got, err := s.read(ctx, u, fieldSecurityStamp)
	if err != nil || got == nil {
		return "", err
	}
	return got.SecurityStamp, nil
}

// RotateSecurityStamp asigna un stamp nuevo (invalida sesiones derivadas del anterior).
func (s *UserStore) RotateSecurityStamp(ctx context.Context, u *User) (string, error) {
	stamp := uuid.NewString()
	return stamp, s.SetSecurityStamp(ctx, u, stamp)
}

func (s *UserStore) SetTwoFactorEnabled(ctx context.Context, u *User, enabled bool) error {
	if err := s.set(ctx, u, fieldTwoFactorEnabled, enabled); err != nil {
		return err
	}
	u.TwoFactorEnabled = enabled
	return nil
}

func (s *UserStore) GetTwoFactorEnabled(ctx context.Context, u *User) (bool, error) {
	got, err := s.read(ctx, u, fieldTwoFactorEnabled)
	if err != nil || got == nil {
		return false, err
	}
	return got.TwoFactorEnabled, nil
}

// ─── Roles ───

// GetRoles retorna los nombres de los roles del usuario.
func (s *UserStore) GetRoles(ctx context.Context, u *User) ([]string, error) {
	got, err := s.read(ctx, u, fieldRoles)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return []string{}, nil
	}
	return got.RoleNames(), nil
}

// AddToRole agrega el rol si el usuario no lo tiene ya, comparando sin
// distinguir mayúsculas. El chequeo va en el filtro del update, así dos
// llamadas concurrentes no duplican la entrada.
func (s *UserStore) AddToRole(ctx context.Context, u *User, roleName string) error {
	if err := requireID("$push", u); err != nil {
		return err
	}
	if roleName == "" {
		return &repository.ValidationError{Op: "$push", Field: fieldRoles, Reason: "empty role name"}
	}
	n := Normalize(roleName)
	q := s.byID(u).
		Where(query.Ne(fieldRoleEntryNormalized, n)).
		Push(fieldRoles, UserRole{Name: roleName, NormalizedName: n, CreateTime: s.now()})
	res, err := s.repo.ExecuteUpdate(ctx, q)
	if err != nil {
		return err
	}
	if res.Matched > 0 {
		s.log.Debug("role added", logger.UserID(u.IDHex()), logger.RoleName(roleName))
	}
	return nil
}

// RemoveFromRole quita el rol; si el usuario no lo tenía no hace nada.
func (s *UserStore) RemoveFromRole(ctx context.Context, u *User, roleName string) error {
	if err := requireID("$pull", u); err != nil {
		return err
	}
	n := Normalize(roleName)
	q := s.byID(u).
		Where(query.Eq(fieldRoleEntryNormalized, n)).
		PullWhere(fieldRoles, query.Eq("normalizedName", n))
	_, err := s.repo.ExecuteUpdate(ctx, q)
	return err
}

// IsInRole reporta si el usuario tiene el rol (sin distinguir mayúsculas).
func (s *UserStore) IsInRole(ctx context.Context, u *User, roleName string) (bool, error) {
	if err := requireID("count", u); err != nil {
		return false, err
	}
	n, err := s.repo.ExecuteCount(ctx, s.byID(u).Where(query.Eq(fieldRoleEntryNormalized, Normalize(roleName))))
	return n > 0, err
}

// GetUsersInRole retorna los usuarios que tienen el rol.
func (s *UserStore) GetUsersInRole(ctx context.Context, roleName string) ([]*User, error) {
	return s.repo.ExecuteQuery(ctx, s.repo.Query().
		Match(fieldRoles, query.Eq("normalizedName", Normalize(roleName))))
}

// ─── Lockout ───

// Block bloquea al usuario con el motivo dado.
func (s *UserStore) Block(ctx context.Context, u *User, reason string) error {
	if err := requireID("$set", u); err != nil {
		return err
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).Set(fieldBlocked, true).Set(fieldBlockReason, reason))
	if err != nil {
		return err
	}
	u.Blocked, u.BlockReason = true, reason
	s.log.Info("user blocked", logger.UserID(u.IDHex()), zap.String("reason", reason))
	return nil
}

// Unblock levanta el bloqueo y resetea el contador de fallos.
func (s *UserStore) Unblock(ctx context.Context, u *User) error {
	if err := requireID("$set", u); err != nil {
		return err
	}
	q := s.byID(u).Set(fieldBlocked, false).Set(fieldBlockReason, "").Set(fieldFailedLoginCount, 0)
	if _, err := s.repo.ExecuteUpdate(ctx, q); err != nil {
		return err
	}
	u.Blocked, u.BlockReason, u.FailedLoginCount = false, "", 0
	return nil
}

// IncrementFailedLogins suma un intento fallido y retorna el total.
func (s *UserStore) IncrementFailedLogins(ctx context.Context, u *User) (int, error) {
	if err := requireID("$inc", u); err != nil {
		return 0, err
	}
	if _, err := s.repo.ExecuteUpdate(ctx, s.byID(u).Inc(fieldFailedLoginCount, 1)); err != nil {
		return 0, err
	}
	got, err := s.read(ctx, u, fieldFailedLoginCount)
	if err != nil || got == nil {
		return 0, err
	}
	u.FailedLoginCount = got.FailedLoginCount
	return got.FailedLoginCount, nil
}

func (s *UserStore) ResetFailedLogins(ctx context.Context, u *User) error {
	if err := s.set(ctx, u, fieldFailedLoginCount, 0); err != nil {
		return err
	}
	u.FailedLoginCount = 0
	return nil
}

// GetLockout lee el estado de bloqueo completo (blocked, blockReason, failedLoginCount).
func (s *UserStore) GetLockout(ctx context.Context, u *User) (blocked bool, reason string, failed int, err error) {
	got, err := s.read(ctx, u, fieldBlocked, fieldBlockReason, fieldFailedLoginCount)
	if err != nil || got == nil {
		return false, "", 0, err
	}
	return got.Blocked, got.BlockReason, got.FailedLoginCount, nil
}

// ─── Tokens ───

// AddToken agrega un token emitido al usuario.
func (s *UserStore) AddToken(ctx context.Context, u *User, t UserToken) error {
	if err := requireID("$push", u); err != nil {
		return err
	}
	if t.CreateTime.IsZero() {
		t.CreateTime = s.now()
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).Push(fieldTokens, t))
	return err
}

// GetTokens lee los tokens del usuario.
func (s *UserStore) GetTokens(ctx context.Context, u *User) ([]UserToken, error) {
	got, err := s.read(ctx, u, fieldTokens)
	if err != nil || got == nil {
		return nil, err
	}
	return got.Tokens, nil
}

// RemoveTokens quita los tokens de ese issuer.
func (s *UserStore) RemoveTokens(ctx context.Context, u *User, issuer string) error {
	if err := requireID("$pull", u); err != nil {
		return err
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.byID(u).PullWhere(fieldTokens, query.Eq("issuer", issuer)))
	return err
}
