package admin

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/BrianEstime1/drone-swarm/internal/formation"
	"github.com/BrianEstime1/drone-swarm/internal/observability"
	"github.com/BrianEstime1/drone-swarm/internal/swarm"
)

// Server exposes a status page and control endpoints for a running
// coordinator. Formation changes staged here take effect at the next
// cycle boundary, never mid-cycle.
type Server struct {
	Swarm   *swarm.Coordinator
	metrics *observability.SwarmCollector
	tpl     *template.Template
	mux     *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

func NewServer(c *swarm.Coordinator, metrics *observability.SwarmCollector) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"meters": func(p *float64) string {
			if p == nil {
				return "-"
			}
			return fmt.Sprintf("%.1f m", *p)
		},
	}).ParseFS(content, "templates/index.html"))
	s := &Server{Swarm: c, metrics: metrics, tpl: tpl, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/fleet", s.handleFleet)
	s.mux.HandleFunc("/formation", s.handleFormation)
	s.mux.HandleFunc("/stop", s.handleStop)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", s.metrics.Handler())
}

// Handler returns the admin mux for mounting or testing.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Snap   swarm.Snapshot
		Shapes []string
	}{
		Snap:   s.Swarm.Snapshot(),
		Shapes: formation.Shapes(),
	}
	s.tpl.Execute(w, data)
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Swarm.Snapshot())
}

// handleFormation stages shape, spacing and stagger changes. Fields may
// arrive as query parameters or form values; absent fields keep their
// current value.
func (s *Server) handleFormation(w http.ResponseWriter, r *http.Request) {
	staged := map[string]any{}
	if shape := r.FormValue("shape"); shape != "" {
		if err := s.Swarm.SetShape(shape); err != nil {
			badRequest(w, err)
			return
		}
		staged["shape"] = shape
	}
	if v := r.FormValue("spacing"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err == nil {
			err = s.Swarm.SetSpacing(m)
		}
		if err != nil {
			badRequest(w, err)
			return
		}
		staged["spacing_m"] = m
	}
	if v := r.FormValue("stagger"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(w, err)
			return
		}
		s.Swarm.SetAltitudeStagger(m)
		staged["stagger_m"] = m
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"staged": staged})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.Swarm.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.Swarm.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if snap.Fault != "" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"state":   snap.State,
		"cycle":   snap.Cycle,
		"holding": snap.Holding,
		"fault":   snap.Fault,
	})
}

func badRequest(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
