package httputil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"
)

// HTTPStatusCodeTag is the name of the HTTP status code tag.
const HTTPStatusCodeTag = "http.response.status_code"

// SetHTTPStatusCodeTag tags the transaction for the current request with the
// response status code, so transactions can be broken down by status.
func SetHTTPStatusCodeTag(e *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint.Response == nil {
		return e
	}
	if e.Tags == nil {
		e.Tags = make(map[string]string)
	}
	if _, exists := e.Tags[HTTPStatusCodeTag]; !exists {
		e.Tags[HTTPStatusCodeTag] = strconv.Itoa(hint.Response.StatusCode)
	}
	return e
}

// AnonymizeTransactionName renames the transaction to the route pattern,
// with path parameters replaced by their placeholder. Raw paths carry IDs
// and would give every request its own transaction name.
func AnonymizeTransactionName(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if transaction := sentry.TransactionFromContext(r.Context()); transaction != nil {
			params := httprouter.ParamsFromContext(r.Context())
			name := r.URL.Path
			for _, p := range params {
				name = strings.Replace(name, p.Value, ":"+p.Key, 1)
			}
			transaction.Name = fmt.Sprintf("%s %s", r.Method, name)
			transaction.Source = sentry.SourceRoute
		}
		handler(w, r)
	}
}
