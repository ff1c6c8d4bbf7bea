// Package scope turns canonical programs into flat hostname lists that
// recon tooling can consume directly.
package scope

import (
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/perplext/bountyscope/pkg/models"
)

// Lists holds the in-scope hostnames of one platform
type Lists struct {
	// Domains are explicit hostnames, e.g. api.acme.com
	Domains []string
	// Wildcards are "*." entries whose root is a registrable domain
	Wildcards []string
}

// nonHostTypes are asset types whose identifiers look like hostnames but
// are not, mostly reverse-DNS mobile app ids. Compared lowercased. Every
// other type, including ones a platform adds later, is kept when its
// identifier classifies as a hostname.
var nonHostTypes = map[string]struct{}{
	"google_play_app_id":         {},
	"apple_store_app_id":         {},
	"windows_app_store_app_id":   {},
	"other_apk":                  {},
	"other_ipa":                  {},
	"testflight":                 {},
	"source_code":                {},
	"downloadable_executables":   {},
	"hardware":                   {},
	"smart_contract":             {},
	"cidr":                       {},
	"ip_address":                 {},
	"ip-address":                 {},
	"mobile-application":         {},
	"mobile-application-android": {},
	"mobile-application-ios":     {},
	"android":                    {},
	"ios":                        {},
	"iprange":                    {},
	"device":                     {},
}

func hostType(assetType string) bool {
	_, skip := nonHostTypes[strings.ToLower(assetType)]
	return !skip
}

// Build collects the in-scope hostnames of every program. Assets of app,
// device and address types are skipped, as is any identifier the same
// program also lists out of scope. Results are sorted and deduplicated.
func Build(programs []models.CanonicalProgram) Lists {
	domains := make(map[string]struct{})
	wildcards := make(map[string]struct{})

	for _, p := range programs {
		excluded := make(map[string]struct{}, len(p.Assets.OutOfScope))
		for _, a := range p.Assets.OutOfScope {
			if host, wildcard, ok := Classify(a.Identifier); ok {
				excluded[key(host, wildcard)] = struct{}{}
			}
		}

		for _, a := range p.Assets.InScope {
			if !hostType(a.Type) {
				continue
			}
			host, wildcard, ok := Classify(a.Identifier)
			if !ok {
				continue
			}
			if _, skip := excluded[key(host, wildcard)]; skip {
				continue
			}
			if wildcard {
				wildcards["*."+host] = struct{}{}
			} else {
				domains[host] = struct{}{}
			}
		}
	}

	return Lists{Domains: sorted(domains), Wildcards: sorted(wildcards)}
}

// Classify extracts a hostname from a scope identifier. URLs are reduced
// to their host, ports and paths are dropped and a leading "*." marks a
// wildcard. IP addresses, bare public suffixes and identifiers with a
// wildcard anywhere else are rejected.
func Classify(identifier string) (host string, wildcard bool, ok bool) {
	s := strings.ToLower(strings.TrimSpace(identifier))
	if s == "" || strings.ContainsAny(s, " \t,") {
		return "", false, false
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", false, false
		}
		s = u.Host
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}

	if strings.HasPrefix(s, "*.") {
		wildcard = true
		s = s[2:]
	}
	s = strings.TrimSuffix(s, ".")

	if s == "" || strings.Contains(s, "*") || !strings.Contains(s, ".") {
		return "", false, false
	}
	if net.ParseIP(s) != nil {
		return "", false, false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(s); err != nil {
		return "", false, false
	}
	return s, wildcard, true
}

func key(host string, wildcard bool) string {
	if wildcard {
		return "*." + host
	}
	return host
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
