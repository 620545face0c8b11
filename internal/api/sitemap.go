package api

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/vamosnene/vamosnene/internal/debuglog"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

// staticPaths lists the site pages that exist regardless of the calendar.
func staticPaths(season int) []string {
	return []string{
		"/", "/vivo", fmt.Sprintf("/calendario/%d", season), "/noticias", "/tienda", "/avisos",
		"/privacy", "/terms", "/about", "/contact",
		"/guias/como-ver-f1-en-argentina",
		"/guias/colapinto-biografia",
		"/guias/glosario-f1",
		"/guias/horarios-argentina",
		"/guias/testing-bahrain",
	}
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	origin := strings.TrimRight(s.cfg.Server.SiteOrigin, "/")
	if origin == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		origin = scheme + "://" + r.Host
	}

	season := s.cfg.Calendar.Season
	paths := staticPaths(season)

	// The sitemap still serves the static pages when the calendar is
	// unavailable.
	events, err := s.store.ListEvents(r.Context(), season)
	if err != nil {
		debuglog.WithError(err).Warn("sitemap: listing events")
	}
	for _, ev := range events {
		paths = append(paths, "/gran-premio/"+ev.Slug)
	}

	set := urlSet{XMLNS: sitemapNS, URLs: make([]sitemapURL, 0, len(paths))}
	for _, p := range paths {
		set.URLs = append(set.URLs, sitemapURL{Loc: origin + p})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=900")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
