package webd

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	ghandlers "github.com/gorilla/handlers"
)

// TokenEnv names the env var holding the /push token.
const TokenEnv = "KALMANLOC_TOKEN"

// tokenAuthenticationMiddleware requires the token from TokenEnv in the
// Authorization header or the api_token query param.
// With no token set, everything is allowed.
func tokenAuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		validToken := os.Getenv(TokenEnv)
		if validToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get("Authorization")
		if token == "" {
			token = r.URL.Query().Get("api_token")
		}
		if token != validToken {
			slog.Warn("Invalid token", "method", r.Method, "url", r.URL, "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func permissiveCorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Add("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		next.ServeHTTP(w, r)
	})
}

func contentTypeMiddlewareFunc(contentType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			next.ServeHTTP(w, r)
		})
	}
}

// writeLog writes an access log line in Apache Common Log Format.
func writeLog(writer io.Writer, p ghandlers.LogFormatterParams) {
	host, _, err := net.SplitHostPort(p.Request.RemoteAddr)
	if err != nil {
		host = p.Request.RemoteAddr
	}
	for _, v := range p.Request.Header.Values("X-Forwarded-For") {
		host += "->" + v
	}
	uri := p.Request.RequestURI
	if uri == "" {
		uri = p.URL.RequestURI()
	}
	quoted := strconv.Quote(uri)
	_, _ = fmt.Fprintf(writer, "%s - - [%s] \"%s %s %s\" %d %d\n",
		host, p.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
		p.Request.Method, quoted[1:len(quoted)-1], p.Request.Proto,
		p.StatusCode, p.Size)
}

var accessLog io.Writer = os.Stdout

func loggingMiddleware(next http.Handler) http.Handler {
	return ghandlers.CustomLoggingHandler(accessLog, next, writeLog)
}
