package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/chinesepoker/internal/arrange"
	"github.com/lox/chinesepoker/internal/estimator"
	"github.com/lox/chinesepoker/internal/gameid"
	"github.com/lox/chinesepoker/internal/report"
	"github.com/lox/chinesepoker/internal/scoring"
)

const testHand = "AS KS QS JS TS 9H 9D 9C 4H 4D 2C 3C 7D"

type memoryStore struct {
	mu    sync.Mutex
	games []report.GameRecord
	err   error
}

func (m *memoryStore) SaveGame(_ context.Context, rec report.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.games = append(m.games, rec)
	return nil
}

func (m *memoryStore) RecentGames(_ context.Context, limit int) ([]report.GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]report.GameRecord, 0, limit)
	for i := len(m.games) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.games[i])
	}
	return out, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

func newTestServer(t *testing.T, store ResultStore) (*Server, *httptest.Server) {
	t.Helper()
	enum, err := arrange.NewEnumerator(arrange.Config{CacheSize: 64})
	require.NoError(t, err)

	cfg := Config{
		Rules:          scoring.DefaultRules(),
		Enumerator:     enum,
		Solve:          estimator.DefaultSolveConfig(),
		PruneDominated: true,
		Samples:        8,
		Opponents:      1,
		Workers:        2,
	}
	if store != nil {
		cfg.Store = store
	}
	s, err := New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop()
		ts.Close()
	})
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	rules := scoring.DefaultRules()
	rules.Sweep = -1
	_, err := New(Config{Rules: rules, Solve: estimator.DefaultSolveConfig()})
	assert.Error(t, err)

	_, err = New(Config{Rules: scoring.DefaultRules(), Solve: estimator.SolveConfig{}})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestArrange(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/arrange", arrangeRequest{Hand: testHand})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decodeBody[arrangeResponse](t, resp)
	require.Positive(t, all.Count)
	assert.Len(t, all.Arrangements, all.Count)
	for _, a := range all.Arrangements {
		assert.False(t, a.Fouled)
		assert.Len(t, a.Front, 3)
	}

	resp = postJSON(t, ts.URL+"/api/arrange", arrangeRequest{Hand: testHand, Dominant: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dominant := decodeBody[arrangeResponse](t, resp)
	assert.Positive(t, dominant.Count)
	assert.LessOrEqual(t, dominant.Count, all.Count)
}

func TestArrangeErrors(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"bad token", arrangeRequest{Hand: "ZZ KS QS JS TS 9H 9D 9C 4H 4D 2C 3C 7D"}, "invalid_cards"},
		{"short hand", arrangeRequest{Hand: "AS KS"}, "invalid_cards"},
		{"duplicate", arrangeRequest{Hand: "AS AS QS JS TS 9H 9D 9C 4H 4D 2C 3C 7D"}, "invalid_cards"},
		{"unknown field", map[string]string{"cards": testHand}, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := postJSON(t, ts.URL+"/api/arrange", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[ErrorData](t, resp).Code)
		})
	}
}

func TestScore(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/score", scoreRequest{Players: []lineSet{
		{Front: "QC QD 4C", Middle: "JC JD JH 5C 5D", Back: "AC AD AH 9C 9D"},
		{Front: "TC TH 4D", Middle: "KC KD 6D 6H 7C", Back: "8H 8S 8C 2S 2D"},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	round := decodeBody[report.RoundRecord](t, resp)
	assert.Equal(t, []int{15, -15}, round.Totals)
	assert.Equal(t, 0, round.Scooper)
	require.Len(t, round.Pairs, 1)
	assert.Equal(t, 0, round.Pairs[0].A)
	assert.Equal(t, 1, round.Pairs[0].B)
}

func TestScoreErrors(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	one := []lineSet{{Front: "QC QD 4C", Middle: "JC JD JH 5C 5D", Back: "AC AD AH 9C 9D"}}
	resp := postJSON(t, ts.URL+"/api/score", scoreRequest{Players: one})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	shared := append(one, lineSet{Front: "QC TH 4D", Middle: "KC KD 6D 6H 7C", Back: "8H 8S 8C 2S 2D"})
	resp = postJSON(t, ts.URL+"/api/score", scoreRequest{Players: shared})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_cards", decodeBody[ErrorData](t, resp).Code)
}

func TestEV(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/ev", evRequest{Hand: testHand, Seed: 3, Top: 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[evResponse](t, resp)
	assert.Equal(t, 8, got.Samples)
	assert.Equal(t, 1, got.Opponents)
	assert.Len(t, got.Hand, 13)
	require.Len(t, got.Candidates, 3)
	for i := 1; i < len(got.Candidates); i++ {
		assert.GreaterOrEqual(t, got.Candidates[i-1].Mean, got.Candidates[i].Mean)
	}
	assert.Equal(t, 1, got.Candidates[0].Rank)

	resp = postJSON(t, ts.URL+"/api/ev", evRequest{Hand: testHand, Opponents: 4})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEquilibriumPersistsGame(t *testing.T) {
	t.Parallel()
	store := &memoryStore{}
	_, ts := newTestServer(t, store)

	resp := postJSON(t, ts.URL+"/api/equilibrium", SolveData{Players: 2, Seed: 11, MaxIterations: 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decodeBody[report.GameRecord](t, resp)
	require.NoError(t, gameid.Validate(rec.ID))
	assert.Equal(t, int64(11), rec.Seed)
	assert.Len(t, rec.Players, 2)
	assert.LessOrEqual(t, rec.Iterations, 20)
	assert.Equal(t, 1, store.count())

	games, err := http.Get(ts.URL + "/api/games?limit=5")
	require.NoError(t, err)
	defer games.Body.Close()
	require.Equal(t, http.StatusOK, games.StatusCode)
	list := decodeBody[[]report.GameRecord](t, games)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	bad, err := http.Get(ts.URL + "/api/games?limit=0")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestEquilibriumStoreFailureStillReturnsGame(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, &memoryStore{err: errors.New("disk full")})

	resp := postJSON(t, ts.URL+"/api/equilibrium", SolveData{Players: 2, Seed: 5, MaxIterations: 10})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEquilibriumErrors(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name string
		data SolveData
	}{
		{"too many players", SolveData{Players: 5}},
		{"one hand", SolveData{Hands: []string{testHand}}},
		{"bad budget", SolveData{Players: 2, TimeBudget: "later"}},
		{"clashing hands", SolveData{Hands: []string{testHand, testHand}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := postJSON(t, ts.URL+"/api/equilibrium", tt.data)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGamesWithoutStore(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/games")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func dialWebSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/equilibrium"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(60*time.Second)))
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, requestID string, mt MessageType, data any) {
	t.Helper()
	msg, err := NewMessage(mt, data, time.Now())
	require.NoError(t, err)
	msg.RequestID = requestID
	require.NoError(t, conn.WriteJSON(msg))
}

func TestWebSocketSolveStreamsProgress(t *testing.T) {
	t.Parallel()
	store := &memoryStore{}
	s, ts := newTestServer(t, store)
	conn := dialWebSocket(t, ts)

	sendMessage(t, conn, "r1", MessageTypeSolve, SolveData{Players: 3, Seed: 2, MaxIterations: 15})

	var progress []estimator.EquilibriumState
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "r1", msg.RequestID)

		switch msg.Type {
		case MessageTypeProgress:
			var state estimator.EquilibriumState
			require.NoError(t, json.Unmarshal(msg.Data, &state))
			progress = append(progress, state)
		case MessageTypeResult:
			var rec report.GameRecord
			require.NoError(t, json.Unmarshal(msg.Data, &rec))
			assert.Len(t, rec.Players, 3)
			assert.Equal(t, rec.Iterations, len(progress))
			for i, st := range progress {
				assert.Equal(t, i+1, st.Iteration)
			}
			assert.Equal(t, 1, store.count())
			assert.Equal(t, 1, s.ConnectionCount())
			return
		default:
			t.Fatalf("unexpected message %s: %s", msg.Type, msg.Data)
		}
	}
}

func readOutcome(t *testing.T, conn *websocket.Conn, requestID string) Message {
	t.Helper()
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, requestID, msg.RequestID)
		if msg.Type != MessageTypeProgress {
			return msg
		}
	}
}

func TestWebSocketSolveBackToBack(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)
	conn := dialWebSocket(t, ts)

	for i, id := range []string{"first", "second", "third"} {
		sendMessage(t, conn, id, MessageTypeSolve, SolveData{Players: 2, Seed: int64(i), MaxIterations: 5})
		msg := readOutcome(t, conn, id)
		require.Equal(t, MessageTypeResult, msg.Type, "got %s", msg.Data)
	}
}

func TestWebSocketErrors(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)
	conn := dialWebSocket(t, ts)

	sendMessage(t, conn, "a", MessageType("deal"), nil)
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "a", msg.RequestID)
	var data ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "unknown_message", data.Code)

	sendMessage(t, conn, "b", MessageTypeSolve, SolveData{Hands: []string{"AS"}})
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeError, msg.Type)
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "invalid_request", data.Code)
}

func TestStopClosesConnections(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t, nil)
	conn := dialWebSocket(t, ts)

	require.Eventually(t, func() bool { return s.ConnectionCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	s.Stop()

	var msg Message
	assert.Error(t, conn.ReadJSON(&msg))
	require.Eventually(t, func() bool { return s.ConnectionCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestEVRejectsExcessiveSamples(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/ev", evRequest{Hand: testHand, Samples: 81})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", decodeBody[ErrorData](t, resp).Code)

	resp = postJSON(t, ts.URL+"/api/ev", evRequest{Hand: testHand, Samples: 80, Top: 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCacheStatsAndPurge(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/arrange", arrangeRequest{Hand: testHand})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	get, err := http.Get(ts.URL + "/api/cache")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	stats := decodeBody[cacheResponse](t, get)
	assert.True(t, stats.Enabled)
	assert.Equal(t, string(arrange.EncodingExact), stats.Encoding)
	assert.Equal(t, 1, stats.Size)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/cache", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	require.Equal(t, http.StatusOK, del.StatusCode)
	assert.Zero(t, decodeBody[cacheResponse](t, del).Size)
}
