package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"trivia-service/internal/app"
	"trivia-service/internal/auth"
	"trivia-service/internal/domain"
)

// TokenVerifier resolves a session token to a user ID.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

type Server struct {
	users   *app.UserService
	matches *app.MatchService
	play    *app.PlayService
	tokens  TokenVerifier
	ws      *WSHandler
}

func NewServer(users *app.UserService, matches *app.MatchService, play *app.PlayService, tokens TokenVerifier) *Server {
	return &Server{
		users:   users,
		matches: matches,
		play:    play,
		tokens:  tokens,
		ws:      NewWSHandler(play, tokens),
	}
}

// Routes returns the router without the access log and CORS wrappers.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods("GET")
	r.HandleFunc("/ws", s.ws.ServeWS)

	r.HandleFunc("/api/register", s.handleRegister).Methods("POST")
	r.HandleFunc("/api/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/signed", s.handleSigned).Methods("POST")
	r.HandleFunc("/api/unsigned", s.handleUnsigned).Methods("POST")
	r.HandleFunc("/api/matches/{id:[0-9]+}", s.handleMatchShow).Methods("GET")
	r.HandleFunc("/api/matches/slug/{slug}", s.handleMatchBySlug).Methods("GET")
	r.HandleFunc("/api/matches/{id:[0-9]+}/rankings", s.handleRankings).Methods("GET")

	authRouter := r.NewRoute().Subrouter()
	authRouter.Use(s.authHandler)
	authRouter.HandleFunc("/api/me", s.handleMe).Methods("GET")
	authRouter.HandleFunc("/api/me", s.handleDeleteMe).Methods("DELETE")
	authRouter.HandleFunc("/api/me/name", s.handleRename).Methods("POST")
	authRouter.HandleFunc("/api/me/password", s.handleChangePassword).Methods("POST")
	authRouter.HandleFunc("/api/matches", s.handleMatchCreate).Methods("POST")
	authRouter.HandleFunc("/api/matches/{id:[0-9]+}/import", s.handleImportQuestions).Methods("POST")
	authRouter.HandleFunc("/api/questions", s.handleQuestionCreate).Methods("POST")
	authRouter.HandleFunc("/api/questions/{id:[0-9]+}/clone", s.handleQuestionClone).Methods("POST")
	authRouter.HandleFunc("/api/play/{matchId:[0-9]+}/start", s.handlePlayStart).Methods("POST")
	authRouter.HandleFunc("/api/play/{matchId:[0-9]+}/react", s.handlePlayReact).Methods("POST")
	authRouter.HandleFunc("/api/play/{matchId:[0-9]+}/status", s.handlePlayStatus).Methods("GET")
	return r
}

// Handler wraps the routes with access logging and CORS.
func (s *Server) Handler() http.Handler {
	allowedOrigins := handlers.AllowedOrigins([]string{"*"})
	allowedMethods := handlers.AllowedMethods([]string{"POST", "OPTIONS", "GET", "DELETE"})
	allowedHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	return handlers.LoggingHandler(os.Stderr, handlers.CORS(allowedOrigins, allowedMethods, allowedHeaders)(s.Routes()))
}

type ctxKey struct{}

func (s *Server) authHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.tokens.Verify(auth.ExtractBearer(r.Header.Get("Authorization")))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Token    string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	res, err := s.users.Register(r.Context(), in.Email, in.Password, in.Name)
	respond(w, http.StatusCreated, res, err)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	res, err := s.users.Login(r.Context(), in.Email, in.Password)
	respond(w, http.StatusOK, res, err)
}

func (s *Server) handleSigned(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	res, err := s.users.Signed(r.Context(), in.Email, in.Token)
	respond(w, http.StatusOK, res, err)
}

func (s *Server) handleUnsigned(w http.ResponseWriter, r *http.Request) {
	res, err := s.users.Unsigned(r.Context())
	respond(w, http.StatusCreated, res, err)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Get(r.Context(), userFrom(r))
	respond(w, http.StatusOK, user, err)
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, s.users.Delete(r.Context(), userFrom(r)))
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decode(w, r, &in) {
		return
	}
	user, err := s.users.Rename(r.Context(), userFrom(r), in.Name)
	respond(w, http.StatusOK, user, err)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if !decode(w, r, &in) {
		return
	}
	err := s.users.ChangePassword(r.Context(), userFrom(r), in.OldPassword, in.NewPassword)
	respond(w, http.StatusNoContent, nil, err)
}

func (s *Server) handleMatchCreate(w http.ResponseWriter, r *http.Request) {
	var (
		match *domain.Match
		err   error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		match, err = s.matches.ImportYAML(r.Context(), r.Body)
	} else {
		var def app.MatchDefinition
		if !decode(w, r, &def) {
			return
		}
		match, err = s.matches.CreateMatch(r.Context(), def)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, newMatchView(match))
}

func (s *Server) handleMatchShow(w http.ResponseWriter, r *http.Request) {
	match, err := s.matches.Get(r.Context(), pathID(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newMatchView(match))
}

func (s *Server) handleMatchBySlug(w http.ResponseWriter, r *http.Request) {
	match, err := s.matches.GetBySlug(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newMatchView(match))
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	rankings, err := s.matches.Rankings(r.Context(), pathID(r, "id"))
	if rankings == nil {
		rankings = []*domain.Ranking{}
	}
	respond(w, http.StatusOK, rankings, err)
}

func (s *Server) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	var in struct {
		QuestionIDs []int64 `json:"questionIds"`
	}
	if !decode(w, r, &in) {
		return
	}
	if len(in.QuestionIDs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("questionIds is required"))
		return
	}
	game, err := s.matches.ImportTemplateQuestions(r.Context(), pathID(r, "id"), in.QuestionIDs...)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, newGameView(game))
}

func (s *Server) handleQuestionCreate(w http.ResponseWriter, r *http.Request) {
	var def app.QuestionDefinition
	if !decode(w, r, &def) {
		return
	}
	q, err := s.matches.CreateTemplateQuestion(r.Context(), def)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, newQuestionView(q))
}

func (s *Server) handleQuestionClone(w http.ResponseWriter, r *http.Request) {
	q, err := s.matches.CloneQuestion(r.Context(), pathID(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, newQuestionView(q))
}

func (s *Server) handlePlayStart(w http.ResponseWriter, r *http.Request) {
	res, err := s.play.Start(r.Context(), userFrom(r), pathID(r, "matchId"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newPlayView(res))
}

func (s *Server) handlePlayReact(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AnswerID int64 `json:"answerId"`
	}
	if !decode(w, r, &in) {
		return
	}
	res, err := s.play.React(r.Context(), userFrom(r), pathID(r, "matchId"), in.AnswerID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, newPlayView(res))
}

func (s *Server) handlePlayStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.play.Status(r.Context(), userFrom(r), pathID(r, "matchId"))
	respond(w, http.StatusOK, status, err)
}

// pathID reads a numeric route variable; the route pattern guarantees digits.
func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid json body"))
		return false
	}
	return true
}

func respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorPayload struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrMatchNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrAnswerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMatchNotPlayable):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrEmptyMatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMatch),
		errors.Is(err, domain.ErrGame),
		errors.Is(err, domain.ErrAnswerMismatch),
		errors.Is(err, domain.ErrNotUsableQuestion),
		errors.Is(err, domain.ErrIntegrity):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
