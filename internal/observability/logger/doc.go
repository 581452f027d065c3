// Package logger provee un logger Zap singleton con scoping por contexto.
//
// # Design Decisions
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context Scoping: una operación puede llevar su propio logger "scoped"
//     (op, collection, user_id) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Levels: debug, info, warn, error (configurable via LOG_LEVEL).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En stores (con contexto):
//
//	log := logger.From(ctx).With(logger.Collection("users"))
//	log.Debug("find", logger.Count(n))
//
// Sin contexto:
//
//	logger.L().Info("indexes ensured")
package logger
