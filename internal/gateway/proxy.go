// Reverse proxy to the configured upstream.
//
// DESIGN: One ReverseProxy instance shared by all exchanges. The
// transport keeps a warm connection pool; FlushInterval keeps streaming
// responses moving instead of buffering. Proxy failures surface as 502
// with the cause recorded on the exchange.
package gateway

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/tschaume/httptrail/internal/monitoring"
)

type proxyErrorKey struct{}

// proxyError carries the upstream failure from the proxy's ErrorHandler
// back to the access middleware. Written and read on the handler
// goroutine, so no locking.
type proxyError struct {
	msg string
}

func withProxyError(ctx context.Context) (context.Context, *proxyError) {
	pe := &proxyError{}
	return context.WithValue(ctx, proxyErrorKey{}, pe), pe
}

func proxyErrorFromContext(ctx context.Context) *proxyError {
	pe, _ := ctx.Value(proxyErrorKey{}).(*proxyError)
	return pe
}

// newProxy builds the reverse proxy for the upstream.
func (g *Gateway) newProxy(upstream *url.URL) *httputil.ReverseProxy {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: g.cfg.Upstream.ResponseHeaderTimeout,
	}

	flushInterval := g.cfg.Upstream.FlushInterval
	if flushInterval == 0 {
		flushInterval = 100 * time.Millisecond
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = upstream.Host
		},
		Transport:     transport,
		FlushInterval: flushInterval,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			requestID := monitoring.RequestIDFromContext(r.Context())
			g.alerts.FlagProxyFailure(requestID, upstream.Host, err)
			if pe := proxyErrorFromContext(r.Context()); pe != nil {
				pe.msg = err.Error()
			}
			g.writeError(w, "upstream unreachable", http.StatusBadGateway)
		},
	}
}
