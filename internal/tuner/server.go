// Package tuner is the HTTP surface: M3U playlist, XMLTV guide, playback
// redirects and operational endpoints, all rendered from the current guide
// snapshot.
package tuner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frndlytuner/frndly-tuner/internal/guide"
	"github.com/frndlytuner/frndly-tuner/internal/resolver"
)

// Guide hands out the current snapshot; ok is false until populated.
type Guide interface {
	Snapshot() (*guide.Snapshot, bool)
}

// StreamResolver resolves a playback slug to a signed upstream URL.
type StreamResolver interface {
	ResolveSlug(ctx context.Context, slug string) (string, error)
}

// Session exposes the session state the server needs for /keep_alive,
// /healthz and the status page.
type Session interface {
	Token(ctx context.Context) (string, error)
	Status() (valid bool, expiresAt time.Time, credsRejected bool)
}

// Server serves the tuner HTTP API.
type Server struct {
	Addr        string
	BaseURL     string // advertised base URL; derived from the request Host when empty
	DefaultDays int

	Guide    Guide
	Resolver StreamResolver
	Session  Session
}

// Run blocks until ctx is cancelled or the listener fails. On shutdown it
// stops accepting new connections and waits briefly for in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":8183"
	}

	srv := &http.Server{Addr: addr, Handler: logRequests(s.Handler())}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("tuner: listening on %s", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("tuner: shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("tuner: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

// Handler builds the route table. Exposed separately so tests can drive
// the mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveStatus)
	mux.HandleFunc("/playlist.m3u8", s.servePlaylist)
	mux.HandleFunc("/playlist.m3u", s.servePlaylist)
	mux.HandleFunc("/epg.xml", s.serveEPG)
	mux.HandleFunc("/play/", s.servePlay)
	mux.HandleFunc("/keep_alive", s.serveKeepAlive)
	mux.HandleFunc("/healthz", s.serveHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) servePlaylist(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Guide.Snapshot()
	if !ok {
		http.Error(w, "guide not yet populated", http.StatusServiceUnavailable)
		return
	}
	f := ParseFilters(r.URL.Query(), s.DefaultDays)
	w.Header().Set("Content-Type", "application/x-mpegURL; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="frndlytv.m3u8"`)
	if err := WritePlaylist(w, snap.Channels, s.baseURL(r), f); err != nil {
		log.Printf("tuner: write playlist: %v", err)
	}
}

func (s *Server) serveEPG(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Guide.Snapshot()
	if !ok {
		http.Error(w, "guide not yet populated", http.StatusServiceUnavailable)
		return
	}
	f := ParseFilters(r.URL.Query(), s.DefaultDays)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="frndlytv-epg.xml"`)
	if err := WriteXMLTV(w, snap, f, time.Now()); err != nil {
		log.Printf("tuner: write epg: %v", err)
	}
}

// servePlay 302-redirects to a freshly leased upstream URL so clients
// never cache the short-lived signed links.
func (s *Server) servePlay(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/play/")
	slug = strings.TrimSuffix(slug, ".m3u8")
	if slug == "" || strings.Contains(slug, "/") {
		http.NotFound(w, r)
		return
	}

	url, err := s.Resolver.ResolveSlug(r.Context(), slug)
	if err != nil {
		var re *resolver.Error
		switch {
		case errors.As(err, &re) && re.Kind == resolver.UnknownChannel:
			http.Error(w, "unknown channel: "+slug, http.StatusNotFound)
		case errors.As(err, &re) && re.Kind == resolver.AuthRejected:
			http.Error(w, "upstream session rejected", http.StatusBadGateway)
		default:
			http.Error(w, "stream resolution failed", http.StatusBadGateway)
		}
		log.Printf("tuner: play %s: %v", slug, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// serveKeepAlive forces a session validity check; the token fetch logs in
// if needed.
func (s *Server) serveKeepAlive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := s.Session.Token(r.Context()); err != nil {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "keep-alive failed: %v", err)
		return
	}
	fmt.Fprint(w, "OK")
}

// serveHealth reports 200 once the guide is populated and the session is
// usable, 503 otherwise.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	snap, populated := s.Guide.Snapshot()
	sessionValid, expiresAt, credsRejected := s.Session.Status()

	status := map[string]any{
		"status":          "ok",
		"session_valid":   sessionValid,
		"creds_rejected":  credsRejected,
		"guide_populated": populated,
	}
	if sessionValid {
		status["session_expires"] = expiresAt.Format(time.RFC3339)
	}
	if populated {
		status["channels"] = len(snap.Channels)
		status["programs"] = snap.ProgramCount()
		status["guide_age_seconds"] = int(snap.Age(time.Now()).Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	if !populated || credsRejected {
		status["status"] = "loading"
		if credsRejected {
			status["status"] = "invalid_credentials"
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	body, _ := json.Marshal(status)
	_, _ = w.Write(body)
}

var statusTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Frndly TV Tuner</title><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<h1>Frndly TV Tuner</h1>
<h2>IPTV Source 1 (Gracenote guide data)</h2>
<p>Playlist: <a href="{{.Base}}/playlist.m3u8?gracenote=include">{{.Base}}/playlist.m3u8?gracenote=include</a><br>
EPG: leave blank, the client matches channels by station id</p>
<h2>IPTV Source 2 (full EPG with metadata)</h2>
<p>Playlist: <a href="{{.Base}}/playlist.m3u8?gracenote=exclude">{{.Base}}/playlist.m3u8?gracenote=exclude</a><br>
EPG: <a href="{{.Base}}/epg.xml?gracenote=exclude">{{.Base}}/epg.xml?gracenote=exclude</a></p>
<h2>Playlist parameters</h2>
<ul>
<li><code>start_chno=N</code> renumber channels from N</li>
<li><code>include=id1,id2</code> / <code>exclude=id1,id2</code> filter by channel id</li>
<li><code>gracenote=include|exclude</code> filter by station id availability</li>
<li><code>days=N</code> EPG horizon (1-7, default {{.DefaultDays}})</li>
</ul>
<h2>Status</h2>
<ul>
<li>Session valid: {{.SessionValid}}{{if .SessionValid}} (expires {{.SessionExpires}}){{end}}</li>
<li>Guide: {{if .Populated}}{{.Channels}} channels, {{.Programs}} programs, refreshed {{.GuideAge}} ago{{else}}not yet populated{{end}}</li>
</ul>
</body>
</html>
`))

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/status" {
		http.NotFound(w, r)
		return
	}
	snap, populated := s.Guide.Snapshot()
	sessionValid, expiresAt, _ := s.Session.Status()

	data := struct {
		Base           string
		DefaultDays    int
		SessionValid   bool
		SessionExpires string
		Populated      bool
		Channels       int
		Programs       int
		GuideAge       string
	}{
		Base:         s.baseURL(r),
		DefaultDays:  s.DefaultDays,
		SessionValid: sessionValid,
		Populated:    populated,
	}
	if sessionValid {
		data.SessionExpires = expiresAt.Format(time.RFC3339)
	}
	if populated {
		data.Channels = len(snap.Channels)
		data.Programs = snap.ProgramCount()
		data.GuideAge = snap.Age(time.Now()).Round(time.Second).String()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTemplate.Execute(w, data); err != nil {
		log.Printf("tuner: status page: %v", err)
	}
}

func (s *Server) baseURL(r *http.Request) string {
	if s.BaseURL != "" {
		return strings.TrimSuffix(s.BaseURL, "/")
	}
	host := r.Host
	if host == "" {
		host = "localhost:8183"
	}
	return "http://" + host
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf(
			"http: %s %s status=%d bytes=%d dur=%s ua=%q remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.UserAgent(), r.RemoteAddr,
		)
	})
}
