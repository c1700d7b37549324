package transport

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"chemviz/internal/utils"
)

var numericSegment = regexp.MustCompile(`/\d+(/|$)`)

type anonymousKey struct{}

// Anonymous marks requests made with ctx to go out without the stored
// credential. Used for the login exchange, which must not present a token.
func Anonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

func isAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}

type authRoundTripper struct {
	client *Client
	next   http.RoundTripper
}

func (rt *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	token := ""
	if cred, ok := rt.client.sessions.Get(); ok && !isAnonymous(req.Context()) {
		token = cred.Token
		out.Header.Set("Authorization", Scheme+" "+token)
	}
	if out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", utils.NewID())
	}
	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", "application/json")
	}

	path := rt.client.relativePath(req.URL)
	route := routeLabel(path)
	start := time.Now()
	resp, err := rt.next.RoundTrip(out)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		rt.client.metrics.ObserveRequest(route, 0, elapsed)
		rt.client.logger.Debugf("%s %s failed: %v", req.Method, path, err)
		return nil, err
	}
	rt.client.metrics.ObserveRequest(route, resp.StatusCode, elapsed)
	rt.client.logger.Zerolog().Debug().
		Str("method", req.Method).
		Str("route", route).
		Int("status", resp.StatusCode).
		Str("request_id", out.Header.Get("X-Request-ID")).
		Float64("seconds", elapsed).
		Msg("request")

	if resp.StatusCode == http.StatusUnauthorized {
		rt.client.metrics.AuthRejections.Inc()
		rt.client.logger.Warnf("credential rejected on %s %s (token %s)", req.Method, path, utils.Fingerprint(token))
		rt.client.emit(Rejection{Method: req.Method, Path: path, Status: resp.StatusCode, Token: token})
	}
	return resp, nil
}

// routeLabel collapses numeric path segments so metric cardinality stays
// bounded: "/summary/12/" becomes "/summary/{id}/".
func routeLabel(path string) string {
	for numericSegment.MatchString(path) {
		path = numericSegment.ReplaceAllString(path, "/{id}$1")
	}
	return path
}
