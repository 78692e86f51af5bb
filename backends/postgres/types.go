package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/sync/singleflight"
)

// TypeInfo is the catalog identity of one extension type.
type TypeInfo struct {
	Name     string
	OID      uint32
	ArrayOID uint32
}

// CatalogQuerier is the slice of a pgx connection the registry needs
// for catalog lookups. *pgx.Conn satisfies it.
type CatalogQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TypeRegistry memoizes pg_type lookups per (database alias, type
// name) for the life of the process. Concurrent first lookups for the
// same key collapse into one catalog query. Failed lookups are not
// memoized; the next caller retries.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*TypeInfo
	group singleflight.Group
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]*TypeInfo)}
}

const typeQuery = `SELECT oid, typarray FROM pg_type WHERE typname = $1`

func typeKey(alias, name string) string {
	return alias + "\x00" + name
}

// Fetch returns the catalog identity of the named type, querying at
// most once per key.
func (r *TypeRegistry) Fetch(ctx context.Context, alias string, q CatalogQuerier, name string) (*TypeInfo, error) {
	k := typeKey(alias, name)
	r.mu.RLock()
	info := r.types[k]
	r.mu.RUnlock()
	if info != nil {
		return info, nil
	}

	v, err, _ := r.group.Do(k, func() (any, error) {
		// The winner of an earlier flight may have stored the entry
		// between the read above and this call.
		r.mu.RLock()
		info := r.types[k]
		r.mu.RUnlock()
		if info != nil {
			return info, nil
		}
		info = &TypeInfo{Name: name}
		err := q.QueryRow(ctx, typeQuery, name).Scan(&info.OID, &info.ArrayOID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("postgres: type %q not found in pg_type", name)
			}
			return nil, fmt.Errorf("postgres: look up type %q: %w", name, err)
		}
		r.mu.Lock()
		r.types[k] = info
		r.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TypeInfo), nil
}

// Known returns the memoized entry without touching the catalog.
func (r *TypeRegistry) Known(alias, name string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[typeKey(alias, name)]
	return info, ok
}

// Register fetches the type and installs text codecs for it and its
// array form on the connection's type map. Registering the same type
// on a connection twice is harmless.
func (r *TypeRegistry) Register(ctx context.Context, alias string, conn *pgx.Conn, name string) error {
	info, err := r.Fetch(ctx, alias, conn, name)
	if err != nil {
		return err
	}
	tm := conn.TypeMap()
	base := &pgtype.Type{Name: info.Name, OID: info.OID, Codec: pgtype.TextCodec{}}
	tm.RegisterType(base)
	if info.ArrayOID != 0 {
		tm.RegisterType(&pgtype.Type{
			Name:  "_" + info.Name,
			OID:   info.ArrayOID,
			Codec: &pgtype.ArrayCodec{ElementType: base},
		})
	}
	return nil
}
