package auth

import (
	"lotwatch/internal/store"
	"net/http"
	"net/url"
	"strings"
)

// ApplyCookies loads stored login cookies into `jar` so api calls look like
// they come from the browser session that logged in.
func ApplyCookies(jar http.CookieJar, cookies []store.Cookie) {
	byHost := map[string][]*http.Cookie{}
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" || c.Name == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		byHost[host] = append(byHost[host], &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    path,
			Expires: c.Expires,
			Secure:  true,
		})
	}
	for host, list := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, list)
	}
}
