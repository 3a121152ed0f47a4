package main

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

//go:embed puzzle/index.html
var indexHTML []byte

//go:embed puzzle/app.css
var puzzleCSS []byte

//go:embed puzzle/app.js
var puzzleJS []byte

func getFavicon() string {
	return `<link rel="icon" href="data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 16 16'%3E%3Crect width='7' height='7' fill='%234f7cff'/%3E%3Crect x='9' width='7' height='7' fill='%234f7cff'/%3E%3Crect y='9' width='7' height='7' fill='%234f7cff'/%3E%3C/svg%3E">`
}

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(puzzleCSS)
	}
}

func getJsHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(puzzleJS)
	}
}
