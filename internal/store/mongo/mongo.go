// Package mongo implementa el repositorio genérico tipado sobre MongoDB.
//
// Repository[T] es el único punto de acceso a una colección: todas las
// operaciones públicas pasan por los helpers Execute*, que aplican el filtro
// match-all por defecto, sort/paginación/proyección, logging y métricas.
// Client resuelve una vez el mapeo kind → colección configurado.
package mongo

import (
	"context"
	"fmt"
	"sort"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/dropDatabas3/docstore/internal/domain/repository"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
)

// Config de conexión. Collections mapea kind de entidad → nombre de colección.
type Config struct {
	URI            string
	Database       string
	AppName        string
	Collections    map[string]string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// Client envuelve un *mongo.Client del driver y el mapeo de colecciones.
type Client struct {
	client      *mongodriver.Client
	db          *mongodriver.Database
	collections map[string]Collection
	log         *zap.Logger
}

// Open conecta, hace ping al primario y resuelve las colecciones configuradas.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("mongo: uri and database are required: %w", repository.ErrNoDatabase)
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	cli, err := mongodriver.Connect(ctx, opts)
	if err != nil {
		return nil, &repository.StoreError{Op: "connect", Err: err}
	}
	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, &repository.StoreError{Op: "ping", Err: err}
	}

	db := cli.Database(cfg.Database)
	c := &Client{
		client:      cli,
		db:          db,
		collections: make(map[string]Collection, len(cfg.Collections)),
		log:         logger.Named("store.mongo").With(logger.Database(cfg.Database)),
	}
	for kind, name := range cfg.Collections {
		if name == "" {
			_ = cli.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo: empty collection name for kind %q: %w", kind, repository.ErrInvalidInput)
		}
		c.collections[kind] = WrapCollection(db.Collection(name))
	}
	c.log.Info("mongo connected", logger.Count(len(c.collections)))
	return c, nil
}

// Collection retorna la colección mapeada para kind.
func (c *Client) Collection(kind string) (Collection, error) {
	coll, ok := c.collections[kind]
	if !ok {
		return nil, fmt.Errorf("mongo: no collection mapped for kind %q (have %v): %w", kind, c.Kinds(), repository.ErrInvalidInput)
	}
	return coll, nil
}

// Kinds lista los kinds mapeados, ordenados.
func (c *Client) Kinds() []string {
	out := make([]string, 0, len(c.collections))
	for k := range c.collections {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Ping verifica la conexión con el primario.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return &repository.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close desconecta el cliente y libera el pool.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
