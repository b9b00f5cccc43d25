// Package api serves the read-only dashboard endpoints for an account:
// execution history, plans with their schedule and token balances.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/core/plan"
	"github.com/vietddude/planbridge/internal/indexing/history"
)

type ChainReader interface {
	Plans(ctx context.Context, address string) ([]domain.PlanSnapshot, error)
	TokenBalances(ctx context.Context, address string) (map[string]decimal.Decimal, error)
}

type HistorySource interface {
	ForOwner(ctx context.Context, owner string) (*history.Report, error)
}

type LinkLookup interface {
	LookupByAddress(address string) (*domain.WalletLink, bool)
}

type Config struct {
	BotUsername string
	Timeout     time.Duration
}

// Response is the error envelope returned on failures.
type Response struct {
	Error string `json:"error"`
}

// PlanView is a plan snapshot with its projected schedule.
type PlanView struct {
	domain.PlanSnapshot
	Label             plan.Label `json:"label"`
	Executions        string     `json:"executions"`
	ReadyToExecute    bool       `json:"ready_to_execute"`
	SecondsUntilNext  int64      `json:"seconds_until_next"`
	NextExecutionTime time.Time  `json:"next_execution_time"`
}

type PlansResponse struct {
	Address string     `json:"address"`
	Active  int        `json:"active"`
	Plans   []PlanView `json:"plans"`
}

type BalancesResponse struct {
	Address  string                     `json:"address"`
	Balances map[string]decimal.Decimal `json:"balances"`
}

type LinkResponse struct {
	Address  string `json:"address"`
	Linked   bool   `json:"linked"`
	DeepLink string `json:"deep_link,omitempty"`
}

type Handler struct {
	cfg     Config
	chain   ChainReader
	history HistorySource
	links   LinkLookup
	now     func() time.Time
	log     *slog.Logger
}

func NewHandler(cfg Config, chain ChainReader, hist HistorySource, links LinkLookup) *Handler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Handler{
		cfg:     cfg,
		chain:   chain,
		history: hist,
		links:   links,
		now:     time.Now,
		log:     slog.Default().With("component", "api"),
	}
}

// Register mounts the account routes on r.
func (h *Handler) Register(r *mux.Router) {
	s := r.PathPrefix("/api/v1/accounts/{address}").Subrouter()
	s.HandleFunc("/history", h.handleHistory).Methods(http.MethodGet)
	s.HandleFunc("/plans", h.handlePlans).Methods(http.MethodGet)
	s.HandleFunc("/balances", h.handleBalances).Methods(http.MethodGet)
	s.HandleFunc("/link", h.handleLink).Methods(http.MethodGet)
}

// Router returns a new router with the account routes mounted.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) handleHistory(rw http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(rw, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	report, err := h.history.ForOwner(ctx, addr)
	if err != nil {
		h.chainError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, report)
}

func (h *Handler) handlePlans(rw http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(rw, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	snapshots, err := h.chain.Plans(ctx, addr)
	if err != nil {
		h.chainError(rw, r, err)
		return
	}

	now := h.now()
	res := PlansResponse{Address: addr, Plans: make([]PlanView, 0, len(snapshots))}
	for _, s := range snapshots {
		st := plan.Project(s, now)
		label := plan.LabelOf(s)
		if label == plan.LabelActive {
			res.Active++
		}
		res.Plans = append(res.Plans, PlanView{
			PlanSnapshot:      s,
			Label:             label,
			Executions:        plan.ExecutionsLabel(s),
			ReadyToExecute:    st.ReadyToExecute,
			SecondsUntilNext:  st.SecondsUntilNext,
			NextExecutionTime: st.NextExecutionTime,
		})
	}
	writeJSON(rw, http.StatusOK, res)
}

func (h *Handler) handleBalances(rw http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(rw, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	balances, err := h.chain.TokenBalances(ctx, addr)
	if err != nil {
		h.chainError(rw, r, err)
		return
	}
	writeJSON(rw, http.StatusOK, BalancesResponse{Address: addr, Balances: balances})
}

func (h *Handler) handleLink(rw http.ResponseWriter, r *http.Request) {
	addr, ok := h.address(rw, r)
	if !ok {
		return
	}
	_, linked := h.links.LookupByAddress(addr)
	writeJSON(rw, http.StatusOK, LinkResponse{
		Address:  addr,
		Linked:   linked,
		DeepLink: DeepLink(h.cfg.BotUsername, addr),
	})
}

// DeepLink returns the bot start link that links address, or "" without a
// bot username.
func DeepLink(botUsername, address string) string {
	if botUsername == "" {
		return ""
	}
	return "https://t.me/" + url.PathEscape(botUsername) + "?start=" + url.QueryEscape(address)
}

func (h *Handler) address(rw http.ResponseWriter, r *http.Request) (string, bool) {
	addr, err := domain.NormalizeAddress(mux.Vars(r)["address"])
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, Response{Error: err.Error()})
		return "", false
	}
	return addr, true
}

func (h *Handler) chainError(rw http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidAddress) {
		writeJSON(rw, http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	h.log.Warn("Chain query failed", "path", r.URL.Path, "error", err)
	writeJSON(rw, http.StatusBadGateway, Response{Error: "chain query failed"})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
