package tagfsserver

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/function61/gokit/logex"
	"github.com/function61/tagfs/pkg/tagfstypes"
	"github.com/gorilla/mux"
)

// HTTP transport for the node's operations, instrumented with request metrics
func NewHTTPHandler(node *Node, logger *log.Logger) http.Handler {
	router := mux.NewRouter()

	defineRestAPI(router, node, logex.Levels(logex.NonNil(logger)))

	router.Handle("/metrics", node.metrics.MetricsHTTPHandler())

	return node.metrics.WrapHTTPServer(router)
}

func defineRestAPI(router *mux.Router, node *Node, logl *logex.Leveled) {
	h := &handlers{node, logl}

	router.HandleFunc("/api/status", h.status).Methods(http.MethodGet)
	router.HandleFunc("/api/files/{hash}/content", h.getContent).Methods(http.MethodGet)
	router.HandleFunc("/api/files/{hash}/remove", h.remove).Methods(http.MethodPost)
	router.HandleFunc("/api/files/{hash}", h.info).Methods(http.MethodGet)
	router.HandleFunc("/api/files/{hash}", h.put).Methods(http.MethodPost)
	router.HandleFunc("/api/list", h.list).Methods(http.MethodGet)
	router.HandleFunc("/api/search", h.search).Methods(http.MethodGet)
	router.HandleFunc("/api/integrity", h.verifyIntegrity).Methods(http.MethodPost)
}

type handlers struct {
	node *Node
	logl *logex.Leveled
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.node.Status()
	if err != nil {
		h.respondError(w, err)
		return
	}

	outJSON(w, status)
}

func (h *handlers) getContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.node.Get(r.Context(), mux.Vars(r)["hash"])
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))

	_, _ = w.Write(content)
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	record, err := h.node.Info(mux.Vars(r)["hash"])
	if err != nil {
		h.respondError(w, err)
		return
	}

	outJSON(w, record)
}

// metadata travels in the query string so the body can be the raw content
func (h *handlers) put(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	record := tagfstypes.FileRecord{
		Hash:        mux.Vars(r)["hash"],
		Name:        query.Get("name"),
		Description: query.Get("description"),
		Tags:        query["tag"],
	}

	if sizeSerialized := query.Get("size"); sizeSerialized != "" {
		size, err := strconv.ParseInt(sizeSerialized, 10, 64)
		if err != nil {
			http.Error(w, "bad size: "+err.Error(), http.StatusBadRequest)
			return
		}

		record.Size = size
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.node.Put(r.Context(), content, record); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.node.Remove(r.Context(), mux.Vars(r)["hash"]); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	hashes, err := h.node.List(r.URL.Query()["tag"])
	if err != nil {
		h.respondError(w, err)
		return
	}

	outJSON(w, hashes)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	hashes, err := h.node.Search(r.URL.Query().Get("q"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	outJSON(w, hashes)
}

func (h *handlers) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.node.VerifyIntegrity(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	outJSON(w, report)
}

func (h *handlers) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tagfstypes.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case tagfstypes.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tagfstypes.ErrDataIntegrity):
		h.logl.Error.Println(err.Error())

		w.Header().Set(tagfstypes.ErrorKindHeader, tagfstypes.ErrorKindDataIntegrity)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, tagfstypes.ErrNodeTerminated):
		w.Header().Set(tagfstypes.ErrorKindHeader, tagfstypes.ErrorKindTerminated)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logl.Error.Println(err.Error())

		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func outJSON(w http.ResponseWriter, out any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
