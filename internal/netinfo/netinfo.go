// Package netinfo extracts peer addresses, TLS state, and request-target
// strings from live connections and incoming requests.
//
// DESIGN: Pure accessors over net.Conn / http.Request; no I/O. Address
// extraction degrades to ok=false for transports without a host:port form
// (unix sockets, in-memory pipes) instead of guessing.
package netinfo

import (
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
)

// Addr is a resolved host and port pair.
type Addr struct {
	Host string
	Port int
}

// String renders the address in host:port form.
func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// RemoteAddr returns the remote endpoint of conn.
func RemoteAddr(conn net.Conn) (Addr, bool) {
	return fromNetAddr(conn.RemoteAddr())
}

// LocalAddr returns the local endpoint of conn.
func LocalAddr(conn net.Conn) (Addr, bool) {
	return fromNetAddr(conn.LocalAddr())
}

// IsTLS reports whether conn carries a TLS session.
func IsTLS(conn net.Conn) bool {
	_, ok := conn.(*tls.Conn)
	return ok
}

// ClientFromRequest parses the request's RemoteAddr into an Addr.
func ClientFromRequest(r *http.Request) (Addr, bool) {
	return parseHostPort(r.RemoteAddr)
}

// PathWithQuery joins a raw path and query string into the request-target
// form used in log lines. The query is appended after "?" only when present.
func PathWithQuery(path, query string) string {
	if query == "" {
		return path
	}
	return path + "?" + query
}

func fromNetAddr(addr net.Addr) (Addr, bool) {
	if addr == nil {
		return Addr{}, false
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return Addr{Host: tcp.IP.String(), Port: tcp.Port}, true
	}
	return parseHostPort(addr.String())
}

func parseHostPort(s string) (Addr, bool) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Addr{}, false
	}
	return Addr{Host: host, Port: port}, true
}
