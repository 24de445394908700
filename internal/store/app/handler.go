// Package server hosts the record store over HTTP and WebSocket. REST routes
// carry point queries and mutations; the WebSocket surface carries live
// query subscriptions with full-snapshot pushes.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
	"golang.org/x/net/websocket"
)

type wireRecord struct {
	ID        string         `json:"id"`
	Partition string         `json:"partition"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toWire(rec store.Record) wireRecord {
	return wireRecord{
		ID:        rec.ID,
		Partition: rec.Partition,
		Fields:    rec.Fields,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func fromWire(rec wireRecord) store.Record {
	return store.Record{
		ID:        rec.ID,
		Partition: rec.Partition,
		Fields:    rec.Fields,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

type recordsEnvelope struct {
	Records []wireRecord `json:"records"`
}

type mutationPayload struct {
	Fields map[string]any `json:"fields"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHandler creates record store routes over the given backend.
func NewHandler(backend store.Store) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		var q store.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeError(w, apperrors.New(apperrors.CodeInvalidPredicate, "invalid query payload"))
			return
		}
		records, err := backend.Get(r.Context(), q)
		if err != nil {
			writeError(w, err)
			return
		}
		wired := make([]wireRecord, len(records))
		for i, rec := range records {
			wired[i] = toWire(rec)
		}
		writeJSON(w, http.StatusOK, recordsEnvelope{Records: wired})
	})

	mux.HandleFunc("POST /v1/partitions/{partition}/records", func(w http.ResponseWriter, r *http.Request) {
		var payload mutationPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, apperrors.New(apperrors.CodeInvalidPredicate, "invalid mutation payload"))
			return
		}
		rec, err := backend.Create(r.Context(), r.PathValue("partition"), payload.Fields)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWire(rec))
	})

	mux.HandleFunc("PATCH /v1/partitions/{partition}/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		var payload mutationPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, apperrors.New(apperrors.CodeInvalidPredicate, "invalid mutation payload"))
			return
		}
		rec, err := backend.Update(r.Context(), r.PathValue("partition"), r.PathValue("id"), payload.Fields)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWire(rec))
	})

	mux.HandleFunc("DELETE /v1/partitions/{partition}/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := backend.Delete(r.Context(), r.PathValue("partition"), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, backend)
	})
	mux.HandleFunc("GET /ws", wsHandler.ServeHTTP)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("store: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeRecordNotFound:
		status = http.StatusNotFound
	case apperrors.CodeEmptyPartition, apperrors.CodeEmptyRecordID, apperrors.CodeInvalidPredicate:
		status = http.StatusBadRequest
	}

	message := "record store failure"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: string(code), Message: message}})
}
