// Package repository define los errores compartidos por el repositorio
// genérico (store/mongo), el query builder y los stores de identidad.
//
//	┌─────────────────────────────────────────────────────┐
//	│        identity (UserStore, RoleStore)              │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│   store/mongo Repository[T]  +  store/query Query[T]│
//	└─────────────────────────────────────────────────────┘
//	                        │
//	         ┌──────────────┴──────────────┐
//	         ▼                             ▼
//	┌─────────────────┐          ┌─────────────────┐
//	│  mongo-driver   │          │    memstore     │
//	└─────────────────┘          └─────────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - ValidationError: query mal armada, se detecta antes de ir al store
//   - StoreError: fallo del store, nunca se reintenta internamente
package repository
