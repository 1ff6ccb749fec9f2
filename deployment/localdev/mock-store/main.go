package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// The mock feed intentionally mixes record shapes (userId vs entity_id,
// RFC3339 strings vs epoch millis, synonym event types) so the engine's
// normalization path gets exercised end to end during local development.

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	base := time.Now().UTC().Add(-14 * 24 * time.Hour).Truncate(24 * time.Hour)

	mux.HandleFunc("/api/v1/store/events", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"records": []map[string]any{
				{"entity_id": "acct-1", "type": "signup", "timestamp": base.Format(time.RFC3339)},
				{"userId": "acct-1", "event": "create", "ts": base.Add(2 * time.Hour).Format(time.RFC3339)},
				{"userId": "acct-1", "event": "edit", "ts": base.Add(26 * time.Hour).Format(time.RFC3339)},
				{"user_id": "acct-1", "kind": "edited", "time": float64(base.Add(27*time.Hour).UnixMilli())},
				{"entity_id": "acct-1", "type": "edit", "timestamp": base.Add(50 * time.Hour).Format(time.RFC3339)},
				{"entity_id": "acct-1", "type": "export", "timestamp": base.Add(3 * 24 * time.Hour).Format(time.RFC3339)},
				{"entity_id": "acct-2", "type": "signup", "timestamp": base.Add(24 * time.Hour).Format(time.RFC3339)},
				{"userId": "acct-2", "event": "create", "ts": base.Add(25 * time.Hour).Format(time.RFC3339)},
				{"entity_id": "acct-3", "type": "signup", "timestamp": base.Add(24 * time.Hour).Format(time.RFC3339)},
				{"entity_id": "acct-3", "type": "collaborate", "timestamp": base.Add(2 * 24 * time.Hour).Format(time.RFC3339)},
				{"entity_id": "acct-3", "type": "session", "timestamp": base.Add(9 * 24 * time.Hour).Format(time.RFC3339)},
				{"entity_id": "acct-3", "type": "sentiment", "timestamp": base.Add(9 * 24 * time.Hour).Format(time.RFC3339), "sentiment": 0.6},
				// malformed on purpose: the engine should skip these and move on
				{"type": "edit", "timestamp": base.Add(30 * time.Hour).Format(time.RFC3339)},
				{"entity_id": "acct-4", "type": "create", "timestamp": "not-a-time"},
			},
		})
	})

	mux.HandleFunc("/api/v1/store/payments", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"states": []map[string]any{
				{"entity_id": "acct-1", "failed_charges": 0, "past_due": false},
				{"entity_id": "acct-2", "failed_charges": 2, "past_due": true},
				{"entity_id": "acct-3", "failed_charges": 0, "past_due": false},
			},
		})
	})

	logger := log.New(log.Writer(), "store-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
