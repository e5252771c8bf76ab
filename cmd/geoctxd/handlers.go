package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"geocontext/internal/app"
	"geocontext/internal/geo"
	"geocontext/internal/metrics"
	"geocontext/internal/snapshot"
)

func newMux(svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/context", handleContext(svc))
	mux.HandleFunc("/v1/report", handleReport(svc))
	mux.HandleFunc("/v1/chat", handleChat(svc))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func parseQuery(r *http.Request) (geo.Coordinate, int, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return geo.Coordinate{}, 0, errors.New("lat is required")
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		return geo.Coordinate{}, 0, errors.New("lon is required")
	}
	radius := 1000
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err = strconv.Atoi(raw)
		if err != nil || radius <= 0 {
			return geo.Coordinate{}, 0, errors.New("radius must be a positive integer")
		}
	}
	center := geo.Coordinate{Lat: lat, Lon: lon}
	if err := center.Validate(); err != nil {
		return geo.Coordinate{}, 0, err
	}
	return center, radius, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func handleContext(svc *app.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		center, radius, err := parseQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		allowStale := r.URL.Query().Get("allow_stale") == "true"

		snap, warnings, err := svc.BuildContext(r.Context(), center, radius, app.BuildOptions{AllowStale: allowStale})
		if err != nil {
			if errors.Is(err, snapshot.ErrNoViableSnapshot) {
				http.Error(w, "no data available for this point", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshot": snap,
			"warnings": warnings,
		})
	}
}

func handleReport(svc *app.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		center, radius, err := parseQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		snap, warnings, err := svc.BuildContext(r.Context(), center, radius, app.BuildOptions{AllowStale: true})
		if err != nil {
			http.Error(w, "no data available for this point", http.StatusServiceUnavailable)
			return
		}
		rep, generative, repWarnings := svc.GenerateReport(r.Context(), snap, r.URL.Query().Get("place"))
		writeJSON(w, http.StatusOK, map[string]any{
			"report":          rep,
			"used_generative": generative,
			"warnings":        append(warnings, repWarnings...),
		})
	}
}

func handleChat(svc *app.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var in struct {
			Question string  `json:"question"`
			Lat      float64 `json:"lat"`
			Lon      float64 `json:"lon"`
			Radius   int     `json:"radius"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if in.Question == "" {
			http.Error(w, "question is required", http.StatusBadRequest)
			return
		}
		if in.Radius <= 0 {
			in.Radius = 1000
		}
		center := geo.Coordinate{Lat: in.Lat, Lon: in.Lon}
		if err := center.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		snap, _, err := svc.BuildContext(r.Context(), center, in.Radius, app.BuildOptions{AllowStale: true})
		if err != nil {
			http.Error(w, "no data available for this point", http.StatusServiceUnavailable)
			return
		}
		answer, limitations, used := svc.Answer(r.Context(), in.Question, snap, nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"answer":       answer,
			"limitations":  limitations,
			"sources_used": used,
		})
	}
}
