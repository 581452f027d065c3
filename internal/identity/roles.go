package identity

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/docstore/internal/cache"
	"github.com/dropDatabas3/docstore/internal/domain/entity"
	"github.com/dropDatabas3/docstore/internal/domain/repository"
	"github.com/dropDatabas3/docstore/internal/metrics"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
	"github.com/dropDatabas3/docstore/internal/store/mongo"
	"github.com/dropDatabas3/docstore/internal/store/query"
)

const (
	fieldRoleName       = "name"
	fieldRoleNormalized = "normalizedName"
)

// RoleStore administra la colección de roles.
type RoleStore struct {
	repo  *mongo.Repository[*Role]
	log   *zap.Logger
	cache cache.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewRoleStore arma el store sobre coll.
func NewRoleStore(coll mongo.Collection, opts ...Option) *RoleStore {
	o := buildOptions(opts)
	return &RoleStore{
		repo:  mongo.NewRepository[*Role](coll, o.repo...),
		log:   o.log.With(logger.Component("roles")),
		cache: o.cache,
		ttl:   o.cacheTTL,
	}
}

// Repository expone el repositorio para consultas ad hoc.
func (s *RoleStore) Repository() *mongo.Repository[*Role] { return s.repo }

// EnsureIndexes crea el índice único sobre normalizedName.
func (s *RoleStore) EnsureIndexes(ctx context.Context) error {
	return s.repo.EnsureIndexes(ctx, mongo.Index{
		Name:   "normalizedName_1",
		Keys:   bson.D{{Key: fieldRoleNormalized, Value: 1}},
		Unique: true,
	})
}

// Create inserta el rol. Falla con DuplicateRoleName si otro rol ya tiene
// el mismo nombre normalizado.
func (s *RoleStore) Create(ctx context.Context, role *Role) (Result, error) {
	if role == nil || role.Name == "" {
		return fail(CodeInvalidRoleName, "Role name is required"), nil
	}
	if role.NormalizedName == "" {
		role.NormalizedName = Normalize(role.Name)
	}
	taken, err := s.repo.AnyBy(ctx, fieldRoleNormalized, role.NormalizedName)
	if err != nil {
		return Result{}, err
	}
	if taken {
		return s.duplicate(role), nil
	}
	if _, err := s.repo.Insert(ctx, role); err != nil {
		if repository.IsDuplicateKey(err) {
			return s.duplicate(role), nil
		}
		return Result{}, err
	}
	s.log.Info("role created", logger.RoleName(role.Name), logger.RoleID(role.IDHex()))
	return Success(), nil
}

func (s *RoleStore) duplicate(role *Role) Result {
	s.log.Warn("duplicate role name", logger.RoleName(role.Name))
	return fail(CodeDuplicateRoleName, "Role with name %s already exists", role.Name)
}

// Update persiste name y normalizedName del rol; createTime y state quedan como
// están en el store. Falla con RoleNotFound si no existe y con DuplicateRoleName
// si el nuevo nombre lo usa otro rol.
func (s *RoleStore) Update(ctx context.Context, role *Role) (Result, error) {
	if role == nil || role.ID.IsZero() {
		return fail(CodeRoleNotFound, "Role not found"), nil
	}
	if role.Name == "" {
		return fail(CodeInvalidRoleName, "Role name is required"), nil
	}
	if role.NormalizedName == "" {
		role.NormalizedName = Normalize(role.Name)
	}
	prev, err := s.repo.Get(ctx, role.ID)
	if err != nil {
		return Result{}, err
	}
	if prev == nil {
		return fail(CodeRoleNotFound, "Role not found"), nil
	}
	taken, err := s.repo.Any(ctx, query.And(
		query.Eq(fieldRoleNormalized, role.NormalizedName),
		query.Ne(entity.FieldID, role.ID),
	))
	if err != nil {
		return Result{}, err
	}
	if taken {
		return s.duplicate(role), nil
	}
	res, err := s.repo.ExecuteUpdate(ctx, s.repo.Query().
		Eq(entity.FieldID, role.ID).
		Set(fieldRoleName, role.Name).
		Set(fieldRoleNormalized, role.NormalizedName))
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return s.duplicate(role), nil
		}
		return Result{}, err
	}
	s.forget(ctx, prev.NormalizedName, role.NormalizedName)
	if res.Matched == 0 {
		return fail(CodeRoleNotFound, "Role not found"), nil
	}
	role.CreateTime, role.State = prev.CreateTime, prev.State
	return Success(), nil
}

// Delete borra el rol (hard delete).
func (s *RoleStore) Delete(ctx context.Context, role *Role) (Result, error) {
	if role == nil || role.ID.IsZero() {
		return fail(CodeRoleNotFound, "Role not found"), nil
	}
	prev, err := s.repo.Get(ctx, role.ID)
	if err != nil {
		return Result{}, err
	}
	if prev == nil {
		return fail(CodeRoleNotFound, "Role not found"), nil
	}
	if _, err := s.repo.DeleteHard(ctx, role.ID); err != nil {
		return Result{}, err
	}
	s.forget(ctx, prev.NormalizedName)
	s.log.Info("role deleted", logger.RoleName(prev.Name), logger.RoleID(prev.IDHex()))
	return Success(), nil
}

// FindByID busca por ID hex. Un ID mal formado es un error de validación.
func (s *RoleStore) FindByID(ctx context.Context, id string) (*Role, error) {
	oid, err := entity.ParseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, oid)
}

// FindByName busca por nombre normalizado (se normaliza de nuevo, es idempotente).
// Retorna nil si no existe.
func (s *RoleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	n := Normalize(name)
	if s.cache == nil {
		return s.repo.GetBy(ctx, fieldRoleNormalized, n)
	}
	if r, ok := s.cached(ctx, n); ok {
		return r, nil
	}
	v, err, _ := s.group.Do(n, func() (any, error) {
		r, err := s.repo.GetBy(ctx, fieldRoleNormalized, n)
		if err != nil || r == nil {
			return r, err
		}
		s.store(ctx, n, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	r, _ := v.(*Role)
	if r == nil {
		return nil, nil
	}
	// cada llamador recibe su copia: la respuesta de singleflight se comparte
	cp := *r
	return &cp, nil
}

func cacheKey(normalized string) string { return "role:" + normalized }

func (s *RoleStore) cached(ctx context.Context, n string) (*Role, bool) {
	raw, err := s.cache.Get(ctx, cacheKey(n))
	switch {
	case cache.IsNotFound(err):
		metrics.RoleCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		metrics.RoleCacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("role cache get failed", logger.RoleName(n), logger.Err(err))
		return nil, false
	}
	var r Role
	if err := bson.Unmarshal([]byte(raw), &r); err != nil {
		metrics.RoleCacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("role cache entry unreadable", logger.RoleName(n), logger.Err(err))
		_ = s.cache.Delete(ctx, cacheKey(n))
		return nil, false
	}
	metrics.RoleCacheLookups.WithLabelValues("hit").Inc()
	return &r, true
}

func (s *RoleStore) store(ctx context.Context, n string, r *Role) {
	raw, err := bson.Marshal(r)
	if err == nil {
		err = s.cache.Set(ctx, cacheKey(n), string(raw), s.ttl)
	}
	if err != nil {
		s.log.Warn("role cache set failed", logger.RoleName(n), logger.Err(err))
	}
}

// forget invalida las entradas de cache de los nombres dados.
func (s *RoleStore) forget(ctx context.Context, names ...string) {
	if s.cache == nil {
		return
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if err := s.cache.Delete(ctx, cacheKey(n)); err != nil {
			s.log.Warn("role cache delete failed", logger.RoleName(n), logger.Err(err))
		}
	}
}

func (s *RoleStore) GetRoleID(role *Role) string { return role.IDHex() }

func (s *RoleStore) GetRoleName(role *Role) string { return role.Name }

func (s *RoleStore) GetNormalizedRoleName(role *Role) string { return role.NormalizedName }

// SetRoleName persiste el nombre y lo refleja en role.
func (s *RoleStore) SetRoleName(ctx context.Context, role *Role, name string) error {
	if err := s.setField(ctx, role, fieldRoleName, name); err != nil {
		return err
	}
	role.Name = name
	return nil
}

// SetNormalizedRoleName persiste el nombre normalizado y lo refleja en role.
func (s *RoleStore) SetNormalizedRoleName(ctx context.Context, role *Role, normalized string) error {
	if err := s.setField(ctx, role, fieldRoleNormalized, normalized); err != nil {
		return err
	}
	role.NormalizedName = normalized
	s.forget(ctx, normalized)
	return nil
}

func (s *RoleStore) setField(ctx context.Context, role *Role, field, v string) error {
	if role == nil || role.ID.IsZero() {
		return &repository.ValidationError{Op: "$set", Field: field, Reason: "role has no id"}
	}
	_, err := s.repo.ExecuteUpdate(ctx, s.repo.Query().Eq(entity.FieldID, role.ID).Set(field, v))
	if err != nil {
		return err
	}
	s.forget(ctx, role.NormalizedName)
	return nil
}

// List retorna todos los roles ordenados por nombre.
func (s *RoleStore) List(ctx context.Context) ([]*Role, error) {
	return s.repo.GetSorted(ctx, query.All(), fieldRoleName, false)
}
