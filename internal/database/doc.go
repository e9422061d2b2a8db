// Package database manages the PostgreSQL connection pool.
//
// One pool serves both consumers:
//   - journal: batched frame inserts
//   - session: the postgres-backed session store
package database
