package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pagemill/crawl-ingest-service/common/utils"
	"github.com/pagemill/crawl-ingest-service/policy"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type FilterHandler struct {
	router *chi.Mux
}

func NewFilterHandler() *FilterHandler {
	router := chi.NewRouter()

	h := &FilterHandler{router: router}

	router.Post("/", h.handleFilter)
	return h
}

func (h *FilterHandler) Router() *chi.Mux {
	return h.router
}

type FilterParams struct {
	URL    string          `json:"url" validate:"required"`
	Policy json.RawMessage `json:"policy"`
}

// handleFilter evaluates one URL against one policy. The plain response is
// the literal text "true" or "false"; ?debug=1 returns the full decision.
func (h *FilterHandler) handleFilter(w http.ResponseWriter, r *http.Request) {
	var p FilterParams

	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pol, err := policy.ParsePolicy(p.Policy)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision := pol.Evaluate(p.URL)

	if r.URL.Query().Get("debug") == "1" {
		utils.WriteJSON(w, http.StatusOK, decision)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strconv.FormatBool(decision.Allowed)))
}
