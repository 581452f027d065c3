// Package memory implementa un adapter en memoria sobre memstore.
// Útil para desarrollo local y para el CLI sin un MongoDB levantado.
// Los datos se pierden al cerrar la conexión.
package memory

import (
	"context"

	"github.com/dropDatabas3/docstore/internal/identity"
	store "github.com/dropDatabas3/docstore/internal/store"
	"github.com/dropDatabas3/docstore/internal/store/mongo/memstore"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	users := memstore.New(cfg.CollectionName(identity.KindUser, identity.DefaultUserCollection))
	roles := memstore.New(cfg.CollectionName(identity.KindRole, identity.DefaultRoleCollection))
	return &memoryConnection{
		users: identity.NewUserStore(users, cfg.Identity...),
		roles: identity.NewRoleStore(roles, cfg.Identity...),
	}, nil
}

type memoryConnection struct {
	users *identity.UserStore
	roles *identity.RoleStore
}

func (c *memoryConnection) Name() string                    { return "memory" }
func (c *memoryConnection) Ping(ctx context.Context) error  { return ctx.Err() }
func (c *memoryConnection) Close(ctx context.Context) error { return nil }
func (c *memoryConnection) Users() *identity.UserStore      { return c.users }
func (c *memoryConnection) Roles() *identity.RoleStore      { return c.roles }
