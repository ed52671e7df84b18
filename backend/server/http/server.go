package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/webwatch/backend/model"
	"github.com/webwatch/backend/storage"
)

const (
	defaultShutdownDeadline = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type PartyService interface {
	CreateParty(ctx context.Context, name, mediaRef string) (model.Party, error)
	GetParty(ctx context.Context, partyID string) (model.Party, error)
	ListParties(ctx context.Context) ([]model.Party, error)
}

type CreatePartyRequest struct {
	Name     string `json:"name"`
	MediaRef string `json:"media_ref"`
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    PartyService
	*http.Server
}

type Config struct {
	Logger       *zerolog.Logger
	PartyService PartyService
	ListenAddr   string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.PartyService,
	}

	r := http.NewServeMux()
	r.HandleFunc("POST /api/party", srv.createParty)
	r.HandleFunc("GET /api/party", srv.listParties)
	r.HandleFunc("GET /api/party/{partyID}", srv.getParty)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) createParty(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var (
		body      []byte
		createReq CreatePartyRequest
	)
	body, _ = io.ReadAll(r.Body)
	defer func() {
		_ = r.Body.Close()
	}()
	if err := json.Unmarshal(body, &createReq); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if createReq.Name == "" {
		writeResponse(w, http.StatusBadRequest, &GenericResponse{Error: "name is required"})
		return
	}

	srv.logger.Trace().Any("request", createReq).Msg("got create party request")

	party, err := srv.svc.CreateParty(r.Context(), createReq.Name, createReq.MediaRef)
	if err != nil {
		writeResponse(w, http.StatusInternalServerError, &GenericResponse{Error: err.Error()})
		return
	}
	writeResponse(w, http.StatusOK, &GenericResponse{Message: "OK", Data: party})
}

func (srv *Server) listParties(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	parties, err := srv.svc.ListParties(r.Context())
	if err != nil {
		writeResponse(w, http.StatusInternalServerError, &GenericResponse{Error: err.Error()})
		return
	}
	writeResponse(w, http.StatusOK, &GenericResponse{Message: "OK", Data: parties})
}

func (srv *Server) getParty(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	partyID := r.PathValue("partyID")
	party, err := srv.svc.GetParty(r.Context(), partyID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, storage.ErrPartyNotFound) {
			code = http.StatusNotFound
		}
		writeResponse(w, code, &GenericResponse{Error: err.Error()})
		return
	}
	writeResponse(w, http.StatusOK, &GenericResponse{Message: "OK", Data: party})
}

func writeResponse(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
