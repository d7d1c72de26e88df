package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/supaquiz/server/internal/api"
	"github.com/supaquiz/server/internal/event"
	"github.com/supaquiz/server/internal/leaderboard"
	"github.com/supaquiz/server/internal/memory"
	"github.com/supaquiz/server/internal/play"
	"github.com/supaquiz/server/internal/quiz"
	"github.com/supaquiz/server/internal/recommend"
	"github.com/supaquiz/server/internal/reconcile"
	"github.com/supaquiz/server/internal/room"
	"github.com/supaquiz/server/internal/user"
)

type testAPI struct {
	engine *gin.Engine
	eb     *event.Bus
}

func makeAPI(t *testing.T) *testAPI {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"items":[{"id":"ex1"}]}`))
	}))
	t.Cleanup(upstream.Close)

	eb := event.NewBus()

	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()
	quizzes := memory.NewQuizStore()

	userSvc := user.NewService(user.Config{Store: users})
	quizSvc := quiz.NewService(quiz.Config{Store: quizzes})
	reconcileSvc := reconcile.NewService(reconcile.Config{
		EventBus: eb,
		Users:    users,
		Sessions: sessions,
	})
	recommendClient := recommend.NewClient(recommend.Config{
		BaseURL: upstream.URL,
		Cache:   recommend.NewCache(rc, "test", time.Minute),
	})
	playSvc := play.NewService(play.Config{
		Store:      sessions,
		Reconciler: reconcileSvc,
		Prewarmer:  recommendClient,
	})
	roomSvc := room.NewService(room.Config{
		EventBus:  eb,
		Redis:     rc,
		Prefix:    "test",
		Questions: quizzes,
		Opener:    playSvc,
	})
	leaderboardSvc := leaderboard.NewService(leaderboard.Config{
		EventBus: eb,
		Redis:    rc,
		Prefix:   "test",
	})

	gin.SetMode(gin.TestMode)
	e := gin.New()

	api.New(api.Config{
		Engine:       e,
		EventBus:     eb,
		User:         userSvc,
		Quiz:         quizSvc,
		Play:         playSvc,
		Reconcile:    reconcileSvc,
		Room:         roomSvc,
		Leaderboard:  leaderboardSvc,
		Recommend:    recommendClient,
		Redis:        rc,
		PubsubPrefix: "test",
	})

	return &testAPI{engine: e, eb: eb}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var out map[string]any
	if len(w.Body.Bytes()) > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestAPI_PlayThrough(t *testing.T) {
	a := makeAPI(t)

	status, u := a.do(t, http.MethodPost, "/api/users", gin.H{"username": "alice"})
	require.Equal(t, http.StatusCreated, status)
	userID := u["user_id"].(string)

	status, s := a.do(t, http.MethodPost, "/api/sessions", gin.H{
		"user_id":          userID,
		"kind":             "training",
		"questionnaire_id": "geo-01",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "active", s["status"])
	sessionID := s["session_id"].(string)

	status, r := a.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/answers", gin.H{
		"question_id":      "q1",
		"is_correct":       true,
		"response_time_ms": 900,
	})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(10), r["score"])

	status, f := a.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/finish", gin.H{})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(10), f["score"])
	require.Equal(t, float64(10), f["total_score"])

	// Finalization is one-way; a second finish is a conflict.
	status, _ = a.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/finish", gin.H{})
	require.Equal(t, http.StatusConflict, status)

	// The leaderboard follows reconciliation asynchronously.
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
		w := httptest.NewRecorder()
		a.engine.ServeHTTP(w, req)
		return w.Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	a.eb.Stop()
}

func TestAPI_Rooms(t *testing.T) {
	a := makeAPI(t)

	_, host := a.do(t, http.MethodPost, "/api/users", gin.H{"username": "host"})
	_, player := a.do(t, http.MethodPost, "/api/users", gin.H{"username": "player"})

	status, q := a.do(t, http.MethodPost, "/api/quizzes", gin.H{"title": "Capitals"})
	require.Equal(t, http.StatusCreated, status)

	status, r := a.do(t, http.MethodPost, "/api/rooms", gin.H{
		"host_id": host["user_id"],
		"quiz_id": q["quiz_id"],
	})
	require.Equal(t, http.StatusCreated, status)
	code := r["code"].(string)

	status, r = a.do(t, http.MethodPost, "/api/rooms/"+code+"/join", gin.H{
		"user_id": player["user_id"],
	})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, r["participants"], 1)

	status, r = a.do(t, http.MethodPost, "/api/rooms/"+code+"/end", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, r["active"])

	// Joining a closed room is a 404.
	status, _ = a.do(t, http.MethodPost, "/api/rooms/"+code+"/join", gin.H{
		"user_id": player["user_id"],
	})
	require.Equal(t, http.StatusNotFound, status)

	a.eb.Stop()
}

func TestAPI_ErrorMapping(t *testing.T) {
	a := makeAPI(t)
	defer a.eb.Stop()

	status, body := a.do(t, http.MethodGet, "/api/users/missing", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.NotEmpty(t, body["message"])

	status, _ = a.do(t, http.MethodPost, "/api/sessions", gin.H{
		"user_id": "not-a-uuid",
		"kind":    "training",
	})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodGet, "/api/rooms/NOPE42", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestAPI_Recommendations(t *testing.T) {
	a := makeAPI(t)
	defer a.eb.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/recommendations?user_id=u1&limit=5", nil)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp recommend.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Items, 1)

	status, _ := a.do(t, http.MethodPost, "/api/recommendations/prewarm?user_id=u1", nil)
	require.Equal(t, http.StatusOK, status)
}
