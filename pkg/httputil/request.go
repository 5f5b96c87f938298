package httputil

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// PathVar returns the route variable key. A missing variable writes a 400
// and reports false.
func PathVar(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val := mux.Vars(r)[key]
	if val == "" {
		WriteBadRequest(w, "missing path parameter: "+key)
		return "", false
	}
	return val, true
}

// Query reads typed query parameters. Absent parameters take their default;
// the first malformed one is kept in Err and later reads return defaults.
type Query struct {
	values url.Values
	err    error
}

// NewQuery wraps the query of r
func NewQuery(r *http.Request) *Query {
	return &Query{values: r.URL.Query()}
}

// Err returns the first parse error
func (q *Query) Err() error {
	return q.err
}

func (q *Query) raw(key string) (string, bool) {
	if q.err != nil {
		return "", false
	}
	str := q.values.Get(key)
	return str, str != ""
}

func (q *Query) fail(key, kind, str string) {
	q.err = fmt.Errorf("invalid %s for query param %s: %s", kind, key, str)
}

// String returns key or def
func (q *Query) String(key, def string) string {
	if str, ok := q.raw(key); ok {
		return str
	}
	return def
}

// Int parses key as an integer
func (q *Query) Int(key string, def int) int {
	str, ok := q.raw(key)
	if !ok {
		return def
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		q.fail(key, "integer", str)
		return def
	}
	return val
}

// Bool parses key as a boolean
func (q *Query) Bool(key string, def bool) bool {
	str, ok := q.raw(key)
	if !ok {
		return def
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		q.fail(key, "boolean", str)
		return def
	}
	return val
}

// Time parses key as an RFC 3339 timestamp; absent is the zero time
func (q *Query) Time(key string) time.Time {
	str, ok := q.raw(key)
	if !ok {
		return time.Time{}
	}
	val, err := time.Parse(time.RFC3339, str)
	if err != nil {
		q.fail(key, "timestamp", str)
		return time.Time{}
	}
	return val
}
