// Package store provee el registry de adaptadores de almacenamiento.
//
// Cada adapter se auto-registra en init(); el binario elige uno por nombre
// (storage.driver) y obtiene los stores de identidad desde la conexión.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/docstore/internal/identity"
	"github.com/dropDatabas3/docstore/internal/store/mongo"
)

// Adapter representa un adaptador capaz de abrir una conexión.
type Adapter interface {
	// Name retorna el nombre del adapter (ej: "mongo", "memory").
	Name() string

	// Connect establece conexión con el almacenamiento.
	Connect(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error)
}

// AdapterConnection representa una conexión activa.
type AdapterConnection interface {
	// Name retorna el nombre del adapter.
	Name() string

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close(ctx context.Context) error

	Users() *identity.UserStore
	Roles() *identity.RoleStore
}

// AdapterConfig configuración para conectar a un almacenamiento.
type AdapterConfig struct {
	// Name del adapter: "mongo", "memory"
	Name string

	// Mongo se usa tal cual por el adapter mongo; el resto solo lee Collections.
	Mongo mongo.Config

	// Identity se pasa a NewUserStore y NewRoleStore.
	Identity []identity.Option
}

// CollectionName resuelve el nombre de colección para kind, con default.
func (c AdapterConfig) CollectionName(kind, def string) string {
	if n := c.Mongo.Collections[kind]; n != "" {
		return n
	}
	return def
}

// WithDefaultCollections retorna una copia con user/role mapeados si faltan.
func (c AdapterConfig) WithDefaultCollections() AdapterConfig {
	m := make(map[string]string, len(c.Mongo.Collections)+2)
	for k, v := range c.Mongo.Collections {
		m[k] = v
	}
	m[identity.KindUser] = c.CollectionName(identity.KindUser, identity.DefaultUserCollection)
	m[identity.KindRole] = c.CollectionName(identity.KindRole, identity.DefaultRoleCollection)
	c.Mongo.Collections = m
	return c
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter en el registry global.
// Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("adapter: %q already registered", name))
	}
	adapters[name] = a
}

// GetAdapter obtiene un adapter por nombre.
func GetAdapter(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}

// ListAdapters retorna los nombres de todos los adapters registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenAdapter abre una conexión usando el adapter especificado en la config.
func OpenAdapter(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error) {
	a, ok := GetAdapter(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("adapter: %q not registered (have %v)", cfg.Name, ListAdapters())
	}
	return a.Connect(ctx, cfg.WithDefaultCollections())
}
