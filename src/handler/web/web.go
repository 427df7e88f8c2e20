package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"fanplay/src/handler/api"
	"fanplay/src/handler/webui"
	"fanplay/src/jukebox"
	"fanplay/src/util"
)

const (
	mimeHTML = "text/html"
	mimeJS   = "application/javascript"
)

var startTime = time.Now()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc(mimeHTML, html.Minify)
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return m
}

type webUI struct {
	version string
	urlRoot string
	debug   bool
	files   fs.FS
	min     *minify.M
	jukebox *jukebox.Jukebox
	assets  *assets
}

// New sets up the router serving the mini-player page and the API.
func New(version, urlRoot string, debug bool, jb *jukebox.Jukebox) (chi.Router, error) {
	web := &webUI{
		version: version,
		urlRoot: urlRoot,
		debug:   debug,
		files:   webui.Files(debug),
		min:     newMinifier(),
		jukebox: jb,
	}
	a, err := web.loadAssets()
	if err != nil {
		return nil, err
	}
	web.assets = a

	service := chi.NewRouter()
	service.Use(util.LogHandler)
	service.Use(middleware.Compress(5))
	service.Get("/", web.playerPage)
	service.Get("/js/player.js", web.playerScript)
	service.Route("/data", func(r chi.Router) {
		api.InitRouter(r, web.jukebox)
	})
	return service, nil
}

// minified runs content through the minifier. The original content is
// returned if minification fails.
func (web *webUI) minified(mediatype string, name string, raw []byte) []byte {
	out, err := web.min.Bytes(mediatype, raw)
	if err != nil {
		log.Warnf("Could not minify %s, using original: %v", name, err)
		return raw
	}
	return out
}

type assets struct {
	page   *template.Template
	script []byte
}

func (web *webUI) loadAssets() (*assets, error) {
	page, err := fs.ReadFile(web.files, "page.html")
	if err != nil {
		return nil, fmt.Errorf("could not read page: %v", err)
	}
	tmpl, err := template.New("page").Parse(string(page))
	if err != nil {
		return nil, fmt.Errorf("could not parse page: %v", err)
	}
	script, err := fs.ReadFile(web.files, "player.js")
	if err != nil {
		return nil, fmt.Errorf("could not read script: %v", err)
	}
	return &assets{
		page:   tmpl,
		script: web.minified(mimeJS, "player.js", script),
	}, nil
}

// getAssets returns the assets loaded at startup, or freshly loaded ones in
// debug builds.
func (web *webUI) getAssets() (*assets, error) {
	if web.debug {
		return web.loadAssets()
	}
	return web.assets, nil
}

func (web *webUI) playerPage(w http.ResponseWriter, r *http.Request) {
	a, err := web.getAssets()
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	var buf bytes.Buffer
	err = a.page.Execute(&buf, map[string]interface{}{
		"urlroot": web.urlRoot,
		"version": web.version,
	})
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mimeHTML+"; charset=utf-8")
	w.Write(web.minified(mimeHTML, "page", buf.Bytes()))
}

func (web *webUI) playerScript(w http.ResponseWriter, r *http.Request) {
	a, err := web.getAssets()
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mimeJS+"; charset=utf-8")
	http.ServeContent(w, r, "player.js", startTime, bytes.NewReader(a.script))
}
