// Package dashboard serves the history of training runs over HTTP.
package dashboard

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/trainkit/training/artifact"
	"github.com/cyclopcam/trainkit/training/config"
	"github.com/cyclopcam/trainkit/training/report"
	"github.com/cyclopcam/trainkit/training/rundb"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

// Plots that may be fetched from a run's report directory
var plotFiles = []string{
	"results.png",
	"confusion_matrix.png",
	"confusion_matrix_normalized.png",
	"F1_curve.png",
	"PR_curve.png",
	"P_curve.png",
	"R_curve.png",
	report.CurveFile,
}

type Server struct {
	Log       logs.Log
	RunDB     *rundb.RunDB
	Artifacts artifact.Storage // Optional

	config     config.DashboardConfig
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
}

func NewServer(log logs.Log, db *rundb.RunDB, artifacts artifact.Storage, cfg config.DashboardConfig) *Server {
	s := &Server{
		Log:       log,
		RunDB:     db,
		Artifacts: artifacts,
		config:    cfg,
	}
	s.setupHttpRoutes()
	return s
}

// Handler returns the router, for serving from somewhere other than ListenHTTP
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	requestLimit := s.config.RateLimit
	if requestLimit <= 0 {
		requestLimit = 120
	}

	// Every route gets its own limiter, keyed by client IP
	handle := func(method, route string, h httprouter.Handle) {
		limited := httprate.Limit(requestLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/runs", s.httpListRuns)
	handle("GET", "/api/runs/:id", s.httpGetRun)
	handle("GET", "/api/runs/:id/report", s.httpGetReport)
	handle("GET", "/api/runs/:id/plot/:name", s.httpGetPlot)
	handle("GET", "/api/runs/:id/artifact", s.httpGetArtifact)

	s.httpRouter = router
}

// addr example: ":8090"
func (s *Server) ListenHTTP(addr string) error {
	s.Log.Infof("Dashboard listening on %v", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
		s.signalIn = nil
	}
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Log.Warnf("Dashboard shutdown complete, with error: %v", err)
	} else {
		s.Log.Infof("Dashboard shutdown complete")
	}
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	www.SendJSON(w, &pingJSON{Time: time.Now().Unix()})
}

func (s *Server) httpListRuns(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit := www.QueryInt(r, "limit")
	if limit <= 0 {
		limit = 100
	}
	runs, err := s.RunDB.List(limit)
	www.Check(err)
	www.SendJSON(w, runs)
}

// getRun returns nil after sending a 404 if the run doesn't exist
func (s *Server) getRun(w http.ResponseWriter, params httprouter.Params) *rundb.Run {
	id := www.ParseID(params.ByName("id"))
	if id <= 0 {
		www.PanicBadRequestf("Invalid run id '%v'", params.ByName("id"))
	}
	run, err := s.RunDB.Get(id)
	www.Check(err)
	if run == nil {
		www.SendError(w, "Run not found", http.StatusNotFound)
	}
	return run
}

func (s *Server) httpGetRun(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if run := s.getRun(w, params); run != nil {
		www.SendJSON(w, run)
	}
}

// sendRunFile serves a file from the run's report directory
func (s *Server) sendRunFile(w http.ResponseWriter, r *http.Request, run *rundb.Run, rel, contentType string) {
	if run.LogDir == "" {
		www.SendError(w, "Run has no report", http.StatusNotFound)
		return
	}
	fullpath := filepath.Join(run.LogDir, rel)
	if st, err := os.Stat(fullpath); err != nil || st.IsDir() {
		www.SendError(w, "File not found", http.StatusNotFound)
		return
	}
	www.SendFile(w, r, fullpath, contentType)
}

func (s *Server) httpGetReport(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if run := s.getRun(w, params); run != nil {
		s.sendRunFile(w, r, run, report.ReportFile, "text/plain; charset=utf-8")
	}
}

func (s *Server) httpGetPlot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := params.ByName("name")
	if !slices.Contains(plotFiles, name) {
		www.PanicBadRequestf("Unknown plot '%v'", name)
	}
	if run := s.getRun(w, params); run != nil {
		s.sendRunFile(w, r, run, filepath.Join(report.PlotsDir, name), "image/png")
	}
}

// httpGetArtifact redirects to the exported model if the store has public URLs, and streams it otherwise
func (s *Server) httpGetArtifact(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	run := s.getRun(w, params)
	if run == nil {
		return
	}
	if s.Artifacts == nil || run.Artifact == "" {
		www.SendError(w, "Run has no published artifact", http.StatusNotFound)
		return
	}
	if url, err := s.Artifacts.URL(run.Artifact); err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	f, err := s.Artifacts.ReadFile(r.Context(), run.Artifact)
	if err != nil {
		www.SendError(w, "Artifact not found", http.StatusNotFound)
		return
	}
	defer f.Reader.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(run.Artifact)+`"`)
	io.Copy(w, f.Reader)
}
