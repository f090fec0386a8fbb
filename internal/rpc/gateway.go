package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/history"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
)

// maxBody bounds request bodies accepted by the HTTP API.
const maxBody = 16 << 20

// Backend is what the HTTP API needs beyond the gRPC service.
type Backend interface {
	Coordinator
	Export(ctx context.Context) (model.Backup, error)
}

// NewGateway returns the HTTP/JSON API:
//
//	GET  /v1/history?q=&sort=   history, filtered and sorted
//	GET  /v1/snippets?q=        snippets, filtered
//	GET  /v1/settings           current settings
//	GET  /v1/menu               context-menu projection
//	GET  /v1/snapshot           all of the above in one document
//	GET  /v1/status             coordinator status
//	GET  /v1/export             backup document as an attachment
//	POST /v1/actions            one tagged request object
//	POST /v1/import             backup document to merge
func NewGateway(b Backend, token string) (*gwruntime.ServeMux, error) {
	g := &gateway{b: b, token: token}
	mux := gwruntime.NewServeMux()
	routes := []struct {
		method, path string
		h            gwruntime.HandlerFunc
	}{
		{http.MethodGet, "/v1/history", g.history},
		{http.MethodGet, "/v1/snippets", g.snippets},
		{http.MethodGet, "/v1/settings", g.settings},
		{http.MethodGet, "/v1/menu", g.menu},
		{http.MethodGet, "/v1/snapshot", g.snapshot},
		{http.MethodGet, "/v1/status", g.status},
		{http.MethodGet, "/v1/export", g.export},
		{http.MethodPost, "/v1/actions", g.actions},
		{http.MethodPost, "/v1/import", g.importData},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, g.authed(r.h)); err != nil {
			return nil, errors.Wrapf(err, "route %s %s", r.method, r.path)
		}
	}
	return mux, nil
}

type gateway struct {
	b     Backend
	token string
}

func (g *gateway) authed(h gwruntime.HandlerFunc) gwruntime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if g.token != "" && !tokenMatches(r.Header.Get("Authorization"), g.token) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		h(w, r, params)
	}
}

func (g *gateway) snap(w http.ResponseWriter, r *http.Request) (coordinator.Snapshot, bool) {
	snap, err := g.b.Snapshot(r.Context())
	if err != nil {
		slog.Error("http: snapshot", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return snap, false
	}
	return snap, true
}

func (g *gateway) history(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	snap, ok := g.snap(w, r)
	if !ok {
		return
	}
	order := snap.Settings.SortOrder
	if s := r.URL.Query().Get("sort"); s != "" {
		order = model.SortOrder(s)
		if !order.Valid() {
			writeError(w, http.StatusBadRequest, "invalid sort order "+s)
			return
		}
	}
	entries := history.FilterHistory(snap.History, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, history.SortHistory(entries, order))
}

func (g *gateway) snippets(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	snap, ok := g.snap(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, history.FilterSnippets(snap.Snippets, r.URL.Query().Get("q")))
}

func (g *gateway) settings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if snap, ok := g.snap(w, r); ok {
		writeJSON(w, http.StatusOK, snap.Settings)
	}
}

func (g *gateway) menu(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if snap, ok := g.snap(w, r); ok {
		writeJSON(w, http.StatusOK, snap.Menu)
	}
}

func (g *gateway) snapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if snap, ok := g.snap(w, r); ok {
		writeJSON(w, http.StatusOK, snap)
	}
}

func (g *gateway) status(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, g.b.Status())
}

func (g *gateway) export(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	b, err := g.b.Export(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := fmt.Sprintf("clipkeep-backup-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	writeJSON(w, http.StatusOK, b)
}

func (g *gateway) actions(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ctx := message.WithSender(r.Context(), "http:"+r.RemoteAddr)
	writeResponse(w, g.b.DispatchJSON(ctx, body))
}

func (g *gateway) importData(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := message.EncodeRequest(message.ImportData{Data: body})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeResponse(w, g.b.DispatchJSON(r.Context(), req))
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return nil, false
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body is not valid JSON")
		return nil, false
	}
	return body, true
}

// writeResponse maps a protocol response onto HTTP: failures are 422 with
// the same body shape.
func writeResponse(w http.ResponseWriter, resp message.Response) {
	code := http.StatusOK
	if !resp.Success {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, resp)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, message.Response{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("http: write response", "err", err)
	}
}
