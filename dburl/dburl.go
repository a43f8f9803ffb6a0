// Package dburl opens connection-pooled drivers from database URLs. Each
// supported URL scheme carries a "+smart" suffix marking the pooled variant:
// statements issued outside an explicit transaction borrow a connection for
// just their own duration, while statements inside a context transaction
// stick to that transaction's connection.
package dburl

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	// The sqldb flavors resolve against these database/sql registrations.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/earlzo/ormx/core"
	"github.com/earlzo/ormx/driver/postgres"
	"github.com/earlzo/ormx/driver/sqldb"
)

// poolParams are pool-tuning query parameters understood by every scheme.
// They are stripped from the URL before the backend DSN is built.
type poolParams struct {
	maxConns int
	minConns int
}

func splitPoolParams(query url.Values) (poolParams, url.Values) {
	params := poolParams{}
	rest := url.Values{}
	for key, valueList := range query {
		switch key {
		case "max_connections":
			params.maxConns, _ = strconv.Atoi(valueList[0])
		case "min_connections":
			params.minConns, _ = strconv.Atoi(valueList[0])
		default:
			rest[key] = valueList
		}
	}
	return params, rest
}

// openFunc builds a driver from a parsed URL with pool params removed.
type openFunc func(ctx context.Context, u *url.URL, params poolParams) (core.Driver, error)

// variant binds a set of URL schemes to one driver constructor. The table
// below is the full set of supported schemes; there is no dynamic
// registration.
type variant struct {
	schemes []string
	open    openFunc
}

var variantList = []variant{
	{schemes: []string{"mysql+smart"}, open: openMySQL},
	{schemes: []string{"postgres+smart", "postgresql+smart"}, open: openPostgres(false)},
	{schemes: []string{"postgresext+smart", "postgresqlext+smart"}, open: openPostgres(true)},
	{schemes: []string{"sqlite+smart"}, open: openSQLite("")},
	{schemes: []string{"sqliteext+smart"}, open: openSQLite("_journal_mode=WAL&_foreign_keys=1")},
	{schemes: []string{"csqliteext+smart"}, open: openSQLite("_journal_mode=WAL&_foreign_keys=1&cache=shared")},
}

// Schemes returns every URL scheme the package can open, in table order.
func Schemes() []string {
	var out []string
	for _, v := range variantList {
		out = append(out, v.schemes...)
	}
	return out
}

// Open parses rawurl, resolves its scheme against the variant table, and
// returns a connected driver.
func Open(ctx context.Context, rawurl string) (core.Driver, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	for _, v := range variantList {
		for _, s := range v.schemes {
			if s == scheme {
				params, rest := splitPoolParams(u.Query())
				u.RawQuery = rest.Encode()
				return v.open(ctx, u, params)
			}
		}
	}
	return nil, fmt.Errorf("dburl: unsupported scheme %q", u.Scheme)
}

// openMySQL rewrites the URL into a go-sql-driver DSN
// (user:pass@tcp(host:port)/db?parseTime=true).
func openMySQL(ctx context.Context, u *url.URL, params poolParams) (core.Driver, error) {
	host := u.Host
	if u.Port() == "" {
		host += ":3306"
	}
	dbName := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	if query.Get("parseTime") == "" {
		query.Set("parseTime", "true")
	}

	dsn := ""
	if u.User != nil {
		dsn = u.User.String() + "@"
	}
	dsn += fmt.Sprintf("tcp(%s)/%s?%s", host, dbName, query.Encode())

	return sqldb.NewDriver(ctx, sqldb.FlavorMySQL, dsn, sqldb.Options{
		MaxOpenConns: params.maxConns,
		MaxIdleConns: params.minConns,
	})
}

func openPostgres(ext bool) openFunc {
	return func(ctx context.Context, u *url.URL, params poolParams) (core.Driver, error) {
		pgURL := *u
		pgURL.Scheme = "postgres"
		return postgres.NewDriver(ctx, pgURL.String(), postgres.Options{
			MaxConns: int32(params.maxConns),
			MinConns: int32(params.minConns),
			Ext:      ext,
		})
	}
}

// openSQLite maps the URL path to a file DSN. URLs take the empty-authority
// form "sqlite+smart:///path/to.db"; the path "/:memory:" opens an in-memory
// database. extraParams carries the pragma settings of the extended variants.
func openSQLite(extraParams string) openFunc {
	return func(ctx context.Context, u *url.URL, params poolParams) (core.Driver, error) {
		path := u.Path
		if u.Opaque != "" {
			path = u.Opaque
		}
		if path == "/:memory:" || path == ":memory:" {
			path = ":memory:"
		} else {
			path = strings.TrimPrefix(path, "/")
		}

		dsn := "file:" + path
		sep := "?"
		if q := u.RawQuery; q != "" {
			dsn += sep + q
			sep = "&"
		}
		if extraParams != "" {
			dsn += sep + extraParams
		}

		return sqldb.NewDriver(ctx, sqldb.FlavorSQLite, dsn, sqldb.Options{
			MaxOpenConns: params.maxConns,
			MaxIdleConns: params.minConns,
		})
	}
}
