package webd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/params"
	"github.com/Galaxy-Crusader/KalmanLocationManager/stream"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type webDaemonStatus struct {
	StartedAt time.Time               `json:"started_at"`
	Uptime    string                  `json:"uptime"`
	Config    *params.WebDaemonConfig `json:"config"`
	WSOpen    bool                    `json:"ws_open"`
	WSConns   int                     `json:"ws_conns"`
	Trail     int                     `json:"trail"`
}

func (s *WebDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	st := webDaemonStatus{
		StartedAt: s.started,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Config:    s.Config,
		Trail:     s.trail.Len(),
	}
	if s.melodyInstance != nil {
		st.WSOpen = !s.melodyInstance.IsClosed()
		st.WSConns = s.melodyInstance.Len()
	}
	s.writeJSON(w, st)
}

func (s *WebDaemon) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

// handleLast writes the last known estimate of every source, keyed by source name.
func (s *WebDaemon) handleLast(w http.ResponseWriter, r *http.Request) {
	out := map[string]*geojson.Feature{}
	for src, e := range s.lastKnown.All() {
		out[src] = e.Feature()
	}
	s.writeJSON(w, out)
}

func (s *WebDaemon) handleLastSource(w http.ResponseWriter, r *http.Request) {
	src, err := fix.ParseSource(mux.Vars(r)["source"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e, ok := s.lastKnown.Get(src)
	if !ok {
		http.Error(w, "No recent estimate", http.StatusNotFound)
		return
	}
	s.writeJSON(w, e.Feature())
}

// handleTrail writes the recent FUSED estimates as a LineString feature.
// ?n= limits it to the newest n.
func (s *WebDaemon) handleTrail(w http.ResponseWriter, r *http.Request) {
	n := s.Config.TrailLength
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	trail := s.trail.Tail(n)
	if len(trail) < 2 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ls := make(orb.LineString, 0, len(trail))
	times := make([]int64, 0, len(trail))
	accuracies := make([]float64, 0, len(trail))
	for _, e := range trail {
		ls = append(ls, e.Point())
		times = append(times, e.T)
		accuracies = append(accuracies, e.HorizontalAccuracy)
	}
	f := geojson.NewFeature(ls)
	f.Properties["Source"] = fix.SourceFused.String()
	f.Properties["Times"] = times
	f.Properties["Accuracies"] = accuracies
	s.writeJSON(w, f)
}

func (s *WebDaemon) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.Diagnostics())
}

type pushResult struct {
	Measurements int `json:"measurements"`
	Statuses     int `json:"statuses"`
	Skipped      int `json:"skipped"`
}

// handlePush feeds NDJSON records (see fix.DecodeRecord) to the push sensors.
// Lines that fail to decode, or name a source without a sensor, are skipped.
func (s *WebDaemon) handlePush(w http.ResponseWriter, r *http.Request) {
	if len(s.pushers) == 0 {
		http.Error(w, "No push sensors", http.StatusNotFound)
		return
	}
	if r.Body == nil {
		http.Error(w, "Please send a request body", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	res := pushResult{}
	lines, errs := stream.Lines(ctx, r.Body)
	for line := range lines {
		rec, err := fix.DecodeRecord(line)
		if err != nil {
			s.logger.Debug("Skipped push line", "error", err)
			res.Skipped++
			continue
		}
		sensor, ok := s.pushers[rec.Source()]
		if !ok {
			res.Skipped++
			continue
		}
		switch {
		case rec.Measurement != nil:
			sensor.Push(*rec.Measurement)
			res.Measurements++
		case rec.Status != nil:
			sensor.SetStatus(rec.Status.Status)
			res.Statuses++
		}
	}
	if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Failed to read push body", "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.writeJSON(w, res)
}
