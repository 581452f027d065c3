// Package mongo implementa el adapter MongoDB.
package mongo

import (
	"context"

	"github.com/dropDatabas3/docstore/internal/identity"
	store "github.com/dropDatabas3/docstore/internal/store"
	"github.com/dropDatabas3/docstore/internal/store/mongo"
)

func init() {
	store.RegisterAdapter(&mongoAdapter{})
}

type mongoAdapter struct{}

func (a *mongoAdapter) Name() string { return "mongo" }

func (a *mongoAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	cli, err := mongo.Open(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	users, err := cli.Collection(identity.KindUser)
	if err != nil {
		_ = cli.Close(context.Background())
		return nil, err
	}
	roles, err := cli.Collection(identity.KindRole)
	if err != nil {
		_ = cli.Close(context.Background())
		return nil, err
	}
	return &mongoConnection{
		client: cli,
		users:  identity.NewUserStore(users, cfg.Identity...),
		roles:  identity.NewRoleStore(roles, cfg.Identity...),
	}, nil
}

type mongoConnection struct {
	client *mongo.Client
	users  *identity.UserStore
	roles  *identity.RoleStore
}

func (c *mongoConnection) Name() string                    { return "mongo" }
func (c *mongoConnection) Ping(ctx context.Context) error  { return c.client.Ping(ctx) }
func (c *mongoConnection) Close(ctx context.Context) error { return c.client.Close(ctx) }
func (c *mongoConnection) Users() *identity.UserStore      { return c.users }
func (c *mongoConnection) Roles() *identity.RoleStore      { return c.roles }
