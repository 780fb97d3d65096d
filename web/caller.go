package web

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/deemkeen/fedcore/domain"
)

var keyIDRe = regexp.MustCompile(`keyId="([^"]+)"`)

// callingDomain names the instance a request comes from. The host of the
// signature keyId wins over the Origin header. Signature verification
// happens in front of this layer.
func callingDomain(r *http.Request) string {
	if m := keyIDRe.FindStringSubmatch(r.Header.Get("Signature")); m != nil {
		if host := hostOf(m[1]); host != "" {
			return host
		}
	}
	return hostOf(r.Header.Get("Origin"))
}

func hostOf(raw string) string {
	if !strings.Contains(raw, "://") {
		return ""
	}
	return domain.DomainOf(raw)
}
