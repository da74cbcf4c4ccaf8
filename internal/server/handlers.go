package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/report"
	"github.com/lox/chinesepoker/poker"
)

// ErrInvalidRequest marks errors caused by the request rather than the server.
var ErrInvalidRequest = errors.New("invalid request")

const maxBodyBytes = 1 << 16

// maxSamplesFactor bounds /api/ev samples as a multiple of the configured default.
const maxSamplesFactor = 10

type arrangeRequest struct {
	Hand     string `json:"hand"`
	Dominant bool   `json:"dominant"`
}

type arrangeResponse struct {
	Count        int                        `json:"count"`
	Arrangements []report.ArrangementRecord `json:"arrangements"`
}

type lineSet struct {
	Front  string `json:"front"`
	Middle string `json:"middle"`
	Back   string `json:"back"`
}

type scoreRequest struct {
	Players []lineSet `json:"players"`
}

type evRequest struct {
	Hand      string `json:"hand"`
	Samples   int    `json:"samples,omitempty"`
	Opponents int    `json:"opponents,omitempty"`
	Seed      int64  `json:"seed"`
	Top       int    `json:"top,omitempty"`
}

type evResponse struct {
	Hand       []string                 `json:"hand"`
	Opponents  int                      `json:"opponents"`
	Samples    int                      `json:"samples"`
	Candidates []report.CandidateRecord `json:"candidates"`
}

func (s *Server) handleArrange(w http.ResponseWriter, r *http.Request) {
	var req arrangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	hand, err := poker.ParseHand(req.Hand, arrange.HandSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	arrs, err := s.config.Enumerator.Enumerate(hand)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Dominant {
		arrs = arrange.Dominant(arrs)
	}
	writeJSON(w, http.StatusOK, arrangeResponse{
		Count:        len(arrs),
		Arrangements: report.NewArrangementRecords(arrs),
	})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	if n := len(req.Players); n < estimator.MinPlayers || n > estimator.MaxPlayers {
		s.writeError(w, fmt.Errorf("%w: need %d-%d players, got %d", ErrInvalidRequest, estimator.MinPlayers, estimator.MaxPlayers, n))
		return
	}

	ev := s.config.Enumerator.Evaluator()
	arrs := make([]arrange.Arrangement, len(req.Players))
	var seen poker.Hand
	for i, p := range req.Players {
		a, err := arrange.Parse(p.Front, p.Middle, p.Back, ev)
		if err != nil {
			s.writeError(w, fmt.Errorf("player %d: %w", i, err))
			return
		}
		if seen&a.Hand() != 0 {
			s.writeError(w, fmt.Errorf("%w: player %d shares cards with an earlier player", poker.ErrDuplicateCard, i))
			return
		}
		seen |= a.Hand()
		arrs[i] = a
	}
	writeJSON(w, http.StatusOK, report.NewRoundRecord(arrs, s.config.Rules.Settle(arrs)))
}

func (s *Server) handleEV(w http.ResponseWriter, r *http.Request) {
	var req evRequest
	if !s.decode(w, r, &req) {
		return
	}
	hand, err := poker.ParseHand(req.Hand, arrange.HandSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Samples == 0 {
		req.Samples = s.config.Samples
	}
	if maxSamples := s.config.Samples * maxSamplesFactor; req.Samples > maxSamples {
		s.writeError(w, fmt.Errorf("%w: samples must be at most %d, got %d", ErrInvalidRequest, maxSamples, req.Samples))
		return
	}
	if req.Opponents == 0 {
		req.Opponents = s.config.Opponents
	}

	opps, err := estimator.NewRandomOpponents(req.Opponents, req.Samples, s.config.Policy, s.config.Enumerator)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	est, err := estimator.New(estimator.Config{
		Rules:          s.config.Rules,
		Enumerator:     s.config.Enumerator,
		Workers:        s.config.Workers,
		Seed:           req.Seed,
		PruneDominated: s.config.PruneDominated,
		Logger:         s.config.Logger,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	cands, err := est.ExpectedValues(r.Context(), hand, opps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Top > 0 && req.Top < len(cands) {
		cands = cands[:req.Top]
	}

	sorted := append([]poker.Card(nil), hand...)
	poker.SortCards(sorted)
	resp := evResponse{
		Opponents:  req.Opponents,
		Samples:    req.Samples,
		Candidates: report.NewCandidateRecords(cands),
	}
	for _, c := range sorted {
		resp.Hand = append(resp.Hand, c.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

type cacheResponse struct {
	Enabled  bool   `json:"enabled"`
	Encoding string `json:"encoding,omitempty"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Size     int    `json:"size"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	cache := s.config.Enumerator.Cache()
	if cache == nil {
		writeJSON(w, http.StatusOK, cacheResponse{})
		return
	}
	if r.Method == http.MethodDelete {
		cache.Purge()
		s.logger.Info("Purged arrangement cache")
	}
	stats := cache.Stats()
	writeJSON(w, http.StatusOK, cacheResponse{
		Enabled:  true,
		Encoding: string(cache.Encoding()),
		Hits:     stats.Hits,
		Misses:   stats.Misses,
		Size:     stats.Size,
	})
}

func (s *Server) handleEquilibrium(w http.ResponseWriter, r *http.Request) {
	var req SolveData
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.solve(r.Context(), req, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	if s.config.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorData{Code: "no_store", Message: "no result store configured"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			s.writeError(w, fmt.Errorf("%w: limit must be 1-500", ErrInvalidRequest))
			return
		}
		limit = n
	}
	games, err := s.config.Store.RecentGames(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if games == nil {
		games = []report.GameRecord{}
	}
	writeJSON(w, http.StatusOK, games)
}

// solve deals or parses the hands in data, searches for an equilibrium and
// saves the result when a store is configured.
func (s *Server) solve(ctx context.Context, data SolveData, progress func(estimator.EquilibriumState)) (report.GameRecord, error) {
	hands, err := s.hands(data)
	if err != nil {
		return report.GameRecord{}, err
	}

	cfg := s.config.Solve
	cfg.Seed = data.Seed
	cfg.Clock = s.clock
	if data.MaxIterations > 0 {
		cfg.MaxIterations = data.MaxIterations
	}
	if data.TimeBudget != "" {
		d, err := time.ParseDuration(data.TimeBudget)
		if err != nil {
			return report.GameRecord{}, fmt.Errorf("%w: time_budget: %w", ErrInvalidRequest, err)
		}
		cfg.TimeBudget = d
	}
	if err := cfg.Validate(); err != nil {
		return report.GameRecord{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	game, err := estimator.NewGame(ctx, hands, estimator.GameConfig{
		Rules:          s.config.Rules,
		Enumerator:     s.config.Enumerator,
		PruneDominated: s.config.PruneDominated,
		Logger:         s.config.Logger,
	})
	if err != nil {
		return report.GameRecord{}, err
	}
	res, err := game.Solve(ctx, cfg, progress)
	if err != nil {
		return report.GameRecord{}, err
	}
	if res.Status == estimator.Canceled {
		return report.GameRecord{}, context.Canceled
	}

	rec := report.NewGameRecord(s.ids.Generate(), data.Seed, game, res, s.config.Rules, s.clock.Now())
	s.logger.Info("Solved game", "id", rec.ID, "status", rec.Status, "iterations", rec.Iterations)
	if s.config.Store != nil {
		if err := s.config.Store.SaveGame(ctx, rec); err != nil {
			s.logger.Warn("Failed to save game", "id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

func (s *Server) hands(data SolveData) ([][]poker.Card, error) {
	if len(data.Hands) > 0 {
		if n := len(data.Hands); n < estimator.MinPlayers || n > estimator.MaxPlayers {
			return nil, fmt.Errorf("%w: need %d-%d hands, got %d", ErrInvalidRequest, estimator.MinPlayers, estimator.MaxPlayers, n)
		}
		hands := make([][]poker.Card, len(data.Hands))
		for i, h := range data.Hands {
			cards, err := poker.ParseHand(h, arrange.HandSize)
			if err != nil {
				return nil, fmt.Errorf("player %d: %w", i, err)
			}
			hands[i] = cards
		}
		return hands, nil
	}

	players := data.Players
	if players == 0 {
		players = estimator.MaxPlayers
	}
	if players < estimator.MinPlayers || players > estimator.MaxPlayers {
		return nil, fmt.Errorf("%w: players must be %d-%d, got %d", ErrInvalidRequest, estimator.MinPlayers, estimator.MaxPlayers, players)
	}
	deck := poker.NewDeck()
	deck.Shuffle(data.Seed)
	return deck.DealHands(players, arrange.HandSize)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if clientError(err) {
		status = http.StatusBadRequest
	} else {
		s.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, ErrorData{Code: errorCode(err), Message: err.Error()})
}

func clientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, poker.ErrInvalidCardToken) ||
		errors.Is(err, poker.ErrDuplicateCard) ||
		errors.Is(err, poker.ErrInvalidHandSize)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, poker.ErrInvalidCardToken), errors.Is(err, poker.ErrDuplicateCard),
		errors.Is(err, poker.ErrInvalidHandSize):
		return "invalid_cards"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
