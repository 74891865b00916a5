package admission

import "net"

// internalRanges are always exempt from rate limiting so that health
// probes and intra-cluster traffic never get throttled.
var internalRanges = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// Whitelist answers whether an address is exempt from rate limiting.
type Whitelist struct {
	nets []*net.IPNet
}

// NewWhitelist builds a whitelist from the internal ranges plus any
// additional CIDRs from configuration. Malformed CIDRs are skipped.
func NewWhitelist(extraCIDRs []string) *Whitelist {
	w := &Whitelist{}
	for _, cidr := range append(append([]string{}, internalRanges...), extraCIDRs...) {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		w.nets = append(w.nets, network)
	}
	return w
}

// Contains reports whether ip falls inside any whitelisted range.
// Unparseable addresses are not whitelisted.
func (w *Whitelist) Contains(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range w.nets {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}
