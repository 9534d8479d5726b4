package adminapi

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"

	"github.com/0xReLogic/Furnace/internal/logging"
)

// AccessList admits admin callers by source address. Deny entries win over
// allow entries; an empty allow list admits every address not denied.
type AccessList struct {
	allow []netip.Prefix
	deny  []netip.Prefix
}

// NewAccessList parses allow and deny entries, each a CIDR or a bare address.
func NewAccessList(allow, deny []string) (*AccessList, error) {
	a := &AccessList{}
	var err error
	if a.allow, err = parsePrefixes(allow); err != nil {
		return nil, err
	}
	if a.deny, err = parsePrefixes(deny); err != nil {
		return nil, err
	}
	return a, nil
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid address or CIDR %q", e)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Allows reports whether addr may reach the admin API.
func (a *AccessList) Allows(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range a.deny {
		if p.Contains(addr) {
			return false
		}
	}
	if len(a.allow) == 0 {
		return true
	}
	for _, p := range a.allow {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware answers 403 to callers the list does not admit. Only the
// connection's remote address is considered; forwarding headers are ignored.
func (a *AccessList) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		addr, err := netip.ParseAddr(host)
		if err != nil || !a.Allows(addr) {
			logging.WithContext(r.Context()).Warn().
				Str("remote_addr", r.RemoteAddr).
				Str("path", r.URL.Path).
				Msg("admin request blocked by access list")
			http.Error(w, "Forbidden: IP address not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
