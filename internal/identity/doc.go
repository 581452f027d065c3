// Package identity implementa los stores de usuarios y roles sobre el
// repositorio genérico de MongoDB.
//
// Todo acceso pasa por las primitivas de query/update del repositorio: no hay
// acceso directo a la colección. Los conflictos de dominio (email duplicado,
// rol inexistente) se devuelven como Result fallido; los fallos del store como
// error.
//
// Proyección por defecto de usuarios: las lecturas de User omiten los campos
// sensibles o pesados (passwordHash, securityStamp, claims, logins, roles,
// tokens, lockout). Los Get* específicos los leen con una proyección de inclusión.
//
// Normalización: emails, nombres de usuario y nombres de rol se comparan por su
// forma en mayúsculas (Normalize).
package identity
