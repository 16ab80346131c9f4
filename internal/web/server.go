// Package web exposes the HTTP surface: payment webhook intake,
// investor operations and SSE streams over the append-only stores.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/basket/internal/domain"
	"github.com/vadiminshakov/basket/internal/storage/ledger"
	"github.com/vadiminshakov/basket/internal/storage/navhistory"
)

const streamPollInterval = 2 * time.Second

type paymentHandler interface {
	OnPaymentEvent(ctx context.Context, event domain.PaymentEvent) error
}

type redeemer interface {
	Redeem(ctx context.Context, email, fundID string, units decimal.Decimal) error
}

type sipService interface {
	Create(ctx context.Context, email, fundID string, amountUSD decimal.Decimal,
		frequency domain.Frequency, paymentMethodRef string) (domain.SIPSchedule, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

type ledgerReader interface {
	EntriesAfter(index uint64) ([]ledger.Record, error)
}

type navReader interface {
	SnapshotsAfter(index uint64) ([]navhistory.Record, error)
}

// Server exposes HTTP endpoints for webhooks, investor operations and
// SSE streams.
type Server struct {
	Addr     string
	Payments paymentHandler
	Redeemer redeemer
	SIP      sipService
	Ledger   ledgerReader
	NAVs     navReader
}

// NewServer creates a new web server instance.
func NewServer(addr string, payments paymentHandler, redeemer redeemer, sip sipService,
	ledgerStore ledgerReader, navStore navReader) *Server {
	return &Server{Addr: addr, Payments: payments, Redeemer: redeemer, SIP: sip, Ledger: ledgerStore, NAVs: navStore}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/payment", s.handlePaymentWebhook)
	mux.HandleFunc("POST /redemptions", s.handleRedeem)
	mux.HandleFunc("POST /sip/schedules", s.handleSIPCreate)
	mux.HandleFunc("POST /sip/schedules/{id}/pause", s.handleSIPAction(func(ctx context.Context, id string) error { return s.SIP.Pause(ctx, id) }))
	mux.HandleFunc("POST /sip/schedules/{id}/resume", s.handleSIPAction(func(ctx context.Context, id string) error { return s.SIP.Resume(ctx, id) }))
	mux.HandleFunc("POST /sip/schedules/{id}/cancel", s.handleSIPAction(func(ctx context.Context, id string) error { return s.SIP.Cancel(ctx, id) }))
	mux.HandleFunc("GET /ledger/stream", s.handleLedgerStream)
	mux.HandleFunc("GET /nav/stream", s.handleNAVStream)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var event domain.PaymentEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}
	if event.ID == "" {
		http.Error(w, "event id is required", http.StatusBadRequest)
		return
	}

	if err := s.Payments.OnPaymentEvent(r.Context(), event); err != nil {
		log.Printf("payment webhook %s: %v", event.ID, err)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type redeemRequest struct {
	Email  string `json:"email"`
	FundID string `json:"fund_id"`
	Units  string `json:"units"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed redemption payload", http.StatusBadRequest)
		return
	}

	units, err := decimal.NewFromString(req.Units)
	if err != nil {
		http.Error(w, "malformed units value", http.StatusBadRequest)
		return
	}

	err = s.Redeemer.Redeem(r.Context(), req.Email, req.FundID, units)
	switch {
	case errors.Is(err, domain.ErrUnknownFund):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInsufficientUnits):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case err != nil:
		log.Printf("redemption for %s: %v", req.Email, err)
		http.Error(w, "failed to redeem", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

type sipCreateRequest struct {
	Email            string `json:"email"`
	FundID           string `json:"fund_id"`
	AmountUSD        string `json:"amount_usd"`
	Frequency        string `json:"frequency"`
	PaymentMethodRef string `json:"payment_method_ref"`
}

func (s *Server) handleSIPCreate(w http.ResponseWriter, r *http.Request) {
	var req sipCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed schedule payload", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(req.AmountUSD)
	if err != nil {
		http.Error(w, "malformed amount value", http.StatusBadRequest)
		return
	}

	schedule, err := s.SIP.Create(r.Context(), req.Email, req.FundID, amount,
		domain.Frequency(req.Frequency), req.PaymentMethodRef)
	switch {
	case errors.Is(err, domain.ErrUnknownFund):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrScheduleExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(schedule); err != nil {
			log.Printf("encode schedule %s: %v", schedule.ID, err)
		}
	}
}

func (s *Server) handleSIPAction(action func(ctx context.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, "schedule id is required", http.StatusBadRequest)
			return
		}
		if err := action(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleLedgerStream(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		http.Error(w, "ledger store not available", http.StatusServiceUnavailable)
		return
	}
	s.stream(w, r, "ledger", func(lastIndex uint64) ([]streamItem, error) {
		records, err := s.Ledger.EntriesAfter(lastIndex)
		if err != nil {
			return nil, err
		}
		items := make([]streamItem, len(records))
		for i, record := range records {
			items[i] = streamItem{index: record.Index, payload: record.Entry}
		}
		return items, nil
	})
}

func (s *Server) handleNAVStream(w http.ResponseWriter, r *http.Request) {
	if s.NAVs == nil {
		http.Error(w, "NAV store not available", http.StatusServiceUnavailable)
		return
	}
	s.stream(w, r, "nav", func(lastIndex uint64) ([]streamItem, error) {
		records, err := s.NAVs.SnapshotsAfter(lastIndex)
		if err != nil {
			return nil, err
		}
		items := make([]streamItem, len(records))
		for i, record := range records {
			items[i] = streamItem{index: record.Index, payload: record.Snapshot}
		}
		return items, nil
	})
}

type streamItem struct {
	index   uint64
	payload any
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, event string, fetch func(lastIndex uint64) ([]streamItem, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat every 30s so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(streamPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	send := func() error {
		items, err := fetch(lastIndex)
		if err != nil {
			return err
		}
		for _, item := range items {
			payload, err := json.Marshal(item.payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: %s\n", event)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = item.index
		}
		return nil
	}

	if err := send(); err != nil {
		http.Error(w, "failed to load records", http.StatusInternalServerError)
		log.Printf("%s stream initial load: %v", event, err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := send(); err != nil {
				log.Printf("%s stream poll err: %v", event, err)
			}
		}
	}
}
