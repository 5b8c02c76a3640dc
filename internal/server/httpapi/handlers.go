package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/sso/internal/server/services"
)

const maxBodyBytes = 1 << 20

const (
	msgOK             = "ok"
	msgMalformedBody  = "malformed request body"
	msgInvalidRequest = "invalid request"
)

// envelope is the body of every response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Request bodies. Length caps only reject abusive payloads; blank and
// policy checks belong to the engine.

type credentialsRequest struct {
	Email    string `json:"email" validate:"max=1024"`
	Password string `json:"password" validate:"max=4096"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"max=8192"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"max=8192"`
}

type recoveryRequest struct {
	Email      string `json:"email" validate:"max=1024"`
	ReturnPath string `json:"passwordChangeInterfacePath" validate:"max=2048"`
}

type passwordChangeRequest struct {
	Token    string `json:"token" validate:"max=8192"`
	Password string `json:"password" validate:"max=4096"`
}

type userData struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type authData struct {
	UserID       string   `json:"userId"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	User         userData `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.auth.Register(r.Context(), req.Email, req.Password)
	s.respondAuth(w, r, res, err)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	s.respondAuth(w, r, res, err)
}

func (s *Server) checkToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.auth.CheckToken(r.Context(), req.Token)
	s.respondAuth(w, r, res, err)
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.auth.RefreshToken(r.Context(), req.RefreshToken)
	s.respondAuth(w, r, res, err)
}

func (s *Server) sendRecoveryEmail(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.auth.SendRecoveryEmail(r.Context(), req.Email, req.ReturnPath)
	s.respond(w, r, nil, err)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordChangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.auth.ChangePassword(r.Context(), req.Token, req.Password)
	s.respond(w, r, nil, err)
}

// decode reads a JSON body into dst and validates it. On failure the 400
// response has already been written.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := msgMalformedBody
		if errors.Is(err, io.EOF) {
			msg = "empty request body"
		}
		s.logger.Debug(r.Context(), "decode request", "path", r.URL.Path, "error", err)
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: msg})
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		s.logger.Debug(r.Context(), "validate request", "path", r.URL.Path, "error", err)
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: msgInvalidRequest})
		return false
	}
	return true
}

func (s *Server) respondAuth(w http.ResponseWriter, r *http.Request, res *services.AuthResult, err error) {
	if err != nil || res == nil {
		s.respond(w, r, nil, err)
		return
	}
	s.respond(w, r, authData{
		UserID:       res.UserID,
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
		User: userData{
			ID:        res.User.ID,
			Email:     res.User.Email,
			Status:    res.User.Status,
			CreatedAt: res.User.CreatedAt,
		},
	}, err)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		e := services.AsError(err)
		writeEnvelope(w, e.Status(), envelope{Message: e.Message})
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: msgOK, Data: data})
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
