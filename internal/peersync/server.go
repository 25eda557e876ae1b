package peersync

import (
	"errors"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/metrics"
)

// maxRequestBody limits the JSON body of an objects request.
const maxRequestBody = 1 << 20

// Server serves the local channel histories to peers.
type Server struct {
	registry  *channel.Registry
	log       zerolog.Logger
	metrics   metrics.Recorder
	startTime time.Time
}

func NewServer(reg *channel.Registry, log zerolog.Logger, rec metrics.Recorder) *Server {
	if rec == nil {
		rec = metrics.Noop()
	}
	return &Server{
		registry:  reg,
		log:       log.With().Str("component", "server").Logger(),
		metrics:   rec,
		startTime: time.Now(),
	}
}

// Handler returns the routes of the history server. extra is mounted
// alongside them, e.g. "/metrics".
func (s *Server) Handler(extra map[string]http.Handler) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /channels", s.listChannels)
	api.HandleFunc("GET /channels/{name}/head", s.head)
	api.HandleFunc("POST /channels/{name}/objects", s.objects)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	for pattern, h := range extra {
		mux.Handle(pattern, h)
	}
	mux.Handle("/", s.instrument(api))
	return mux
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.IncRequests(endpoint, sw.status)
	})
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Channels      int     `json:"channels"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Channels:      len(s.registry.Channels()),
	})
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, channelsResponse{Channels: s.registry.Channels()})
}

func (s *Server) head(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.lookup(w, r)
	if !ok {
		return
	}
	resp := headResponse{Channel: repo.Name()}
	if head, ok := repo.TopOfTree(); ok {
		resp.Head = cidString(head)
	}
	writeJSON(w, resp)
}

func (s *Server) objects(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req objectsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	wants, err := decodeCIDs(req.Wants)
	if err != nil || len(wants) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	haves, err := decodeCIDs(req.Haves)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	objs, err := BuildPack(repo, wants, haves)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("channel", repo.Name()).Msg("build pack")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(EncodePack(objs))
	s.log.Debug().Str("channel", repo.Name()).Int("objects", len(objs)).Msg("pack served")
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*channel.Repository, bool) {
	repo, err := s.registry.Channel(r.PathValue("name"))
	if err != nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return nil, false
	}
	return repo, true
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
