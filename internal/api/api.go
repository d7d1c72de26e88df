package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
	"github.com/supaquiz/server/internal/event"
	"github.com/supaquiz/server/internal/leaderboard"
	"github.com/supaquiz/server/internal/play"
	"github.com/supaquiz/server/internal/quiz"
	"github.com/supaquiz/server/internal/recommend"
	"github.com/supaquiz/server/internal/reconcile"
	"github.com/supaquiz/server/internal/room"
	"github.com/supaquiz/server/internal/user"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	User         *user.Service
	Quiz         *quiz.Service
	Play         *play.Service
	Reconcile    *reconcile.Service
	Room         *room.Service
	Leaderboard  *leaderboard.Service
	Recommend    *recommend.Client
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	us  *user.Service
	qs  *quiz.Service
	ps  *play.Service
	rs  *reconcile.Service
	rms *room.Service
	ls  *leaderboard.Service
	rec *recommend.Client

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		us:     c.User,
		qs:     c.Quiz,
		ps:     c.Play,
		rs:     c.Reconcile,
		rms:    c.Room,
		ls:     c.Leaderboard,
		rec:    c.Recommend,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	a.routes(c.Engine)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameScoreReconciled, func(ctx context.Context, e event.Event) error {
		return a.PublishAchievementsUnlocked(ctx, e.(domain.EventScoreReconciled))
	})
	c.EventBus.Subscribe(domain.EventNameRoomClosed, func(ctx context.Context, e event.Event) error {
		return a.PublishRoomClosed(ctx, e.(domain.EventRoomClosed))
	})

	return a
}

func (a *API) routes(e *gin.Engine) {
	g := e.Group("/api")

	g.POST("/users", a.signup)
	g.GET("/users", a.listUsers)
	g.GET("/users/:user_id", a.getUser)
	g.GET("/users/:user_id/sessions", a.listSessions)
	g.POST("/users/:user_id/recompute", a.recompute)

	g.POST("/quizzes", a.createQuiz)
	g.GET("/quizzes", a.listQuizzes)
	g.GET("/quizzes/:quiz_id", a.getQuiz)
	g.POST("/quizzes/:quiz_id/questions", a.addQuestion)
	g.GET("/quizzes/:quiz_id/questions", a.listQuestions)

	g.POST("/sessions", a.startSession)
	g.POST("/sessions/:session_id/answers", a.recordAnswer)
	g.POST("/sessions/:session_id/finish", a.finishSession)

	g.POST("/rooms", a.createRoom)
	g.GET("/rooms/:code", a.getRoom)
	g.POST("/rooms/:code/join", a.joinRoom)
	g.POST("/rooms/:code/end", a.endRoom)
	g.GET("/rooms/:code/questions", a.roomQuestions)

	g.GET("/leaderboard", a.topLeaderboard)

	g.GET("/recommendations", a.recommendations)
	g.POST("/recommendations/prewarm", a.prewarm)
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code,
		"message": e.Message,
	})
}

type userView struct {
	UserID       string   `json:"user_id"`
	Username     string   `json:"username"`
	Avatar       string   `json:"avatar"`
	ScoreTotal   int64    `json:"score_total"`
	Achievements []string `json:"achievement_state"`
}

func toUserView(u domain.User) userView {
	achievements := u.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return userView{
		UserID:       u.UserID,
		Username:     u.Username,
		Avatar:       u.Avatar,
		ScoreTotal:   u.ScoreTotal,
		Achievements: achievements,
	}
}

func (a *API) signup(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	u, err := a.us.Signup(c.Request.Context(), user.SignupRequest{
		Username: req.Username,
		Avatar:   req.Avatar,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUserView(*u))
}

func (a *API) listUsers(c *gin.Context) {
	users, err := a.us.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}

	c.JSON(http.StatusOK, views)
}

func (a *API) getUser(c *gin.Context) {
	p, err := a.us.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	avatars := p.AchievementAvatars
	if avatars == nil {
		avatars = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":                toUserView(p.User),
		"achievement_avatars": avatars,
	})
}

func (a *API) recompute(c *gin.Context) {
	res, err := a.rs.Recompute(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, reconcileView(res))
}

func reconcileView(res *reconcile.Result) gin.H {
	newly, all := res.NewlyUnlocked, res.AllUnlocked
	if newly == nil {
		newly = []string{}
	}
	if all == nil {
		all = []string{}
	}
	return gin.H{
		"total":          res.Total,
		"newly_unlocked": newly,
		"all_unlocked":   all,
	}
}

type quizView struct {
	QuizID string `json:"quiz_id"`
	Title  string `json:"title"`
	Theme  string `json:"theme"`
}

func toQuizView(q domain.Quiz) quizView {
	return quizView{QuizID: q.QuizID, Title: q.Title, Theme: q.Theme}
}

type questionView struct {
	QuestionID   string   `json:"question_id"`
	QuizID       string   `json:"quiz_id"`
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

func toQuestionView(q domain.Question) questionView {
	return questionView{
		QuestionID:   q.QuestionID,
		QuizID:       q.QuizID,
		QuestionText: q.QuestionText,
		Options:      q.Options,
		CorrectIndex: q.CorrectIndex,
	}
}

func toQuestionViews(qs []domain.Question) []questionView {
	views := make([]questionView, 0, len(qs))
	for _, q := range qs {
		views = append(views, toQuestionView(q))
	}
	return views
}

func (a *API) createQuiz(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
		Theme string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	q, err := a.qs.CreateQuiz(c.Request.Context(), quiz.CreateQuizRequest{
		Title: req.Title,
		Theme: req.Theme,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuizView(*q))
}

func (a *API) listQuizzes(c *gin.Context) {
	qs, err := a.qs.ListQuizzes(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	views := make([]quizView, 0, len(qs))
	for _, q := range qs {
		views = append(views, toQuizView(q))
	}

	c.JSON(http.StatusOK, views)
}

func (a *API) getQuiz(c *gin.Context) {
	q, err := a.qs.GetQuiz(c.Request.Context(), c.Param("quiz_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuizView(*q))
}

func (a *API) addQuestion(c *gin.Context) {
	var req struct {
		QuestionText string   `json:"question_text"`
		Options      []string `json:"options"`
		CorrectIndex int      `json:"correct_index"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	q, err := a.qs.AddQuestion(c.Request.Context(), quiz.AddQuestionRequest{
		QuizID:       c.Param("quiz_id"),
		QuestionText: req.QuestionText,
		Options:      req.Options,
		CorrectIndex: req.CorrectIndex,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuestionView(*q))
}

func (a *API) listQuestions(c *gin.Context) {
	qs, err := a.qs.ListQuestions(c.Request.Context(), c.Param("quiz_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuestionViews(qs))
}

type sessionView struct {
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Score      int64           `json:"score"`
	Completion decimal.Decimal `json:"completion_percentage"`
	Outcomes   []outcomeView   `json:"questions_played"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
}

type outcomeView struct {
	QuestionID     string `json:"question_id"`
	Answered       bool   `json:"answered"`
	Correct        bool   `json:"is_correct"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Score          int64  `json:"score"`
}

func toSessionView(ps domain.PlaySession) sessionView {
	outcomes := make([]outcomeView, 0, len(ps.Outcomes))
	for _, o := range ps.Outcomes {
		outcomes = append(outcomes, outcomeView{
			QuestionID:     o.QuestionID,
			Answered:       o.Answered,
			Correct:        o.Correct,
			ResponseTimeMs: o.ResponseTimeMs,
			Score:          o.Score,
		})
	}
	return sessionView{
		SessionID:  ps.SessionID,
		UserID:     ps.UserID,
		Kind:       string(ps.Kind),
		Status:     string(ps.Status),
		Score:      ps.Score,
		Completion: ps.Completion,
		Outcomes:   outcomes,
		StartTime:  ps.StartTime,
		EndTime:    ps.EndTime,
	}
}

func (a *API) startSession(c *gin.Context) {
	var req struct {
		UserID          string `json:"user_id"`
		Kind            string `json:"kind"`
		RoomCode        string `json:"room_code"`
		QuizID          string `json:"quiz_id"`
		QuestionnaireID string `json:"questionnaire_id"`
		Theme           string `json:"theme"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ps, err := a.ps.Start(c.Request.Context(), play.StartRequest{
		UserID:          req.UserID,
		Kind:            domain.SessionKind(req.Kind),
		RoomCode:        req.RoomCode,
		QuizID:          req.QuizID,
		QuestionnaireID: req.QuestionnaireID,
		Theme:           req.Theme,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSessionView(*ps))
}

func (a *API) recordAnswer(c *gin.Context) {
	var req struct {
		QuestionID     string `json:"question_id"`
		Correct        bool   `json:"is_correct"`
		ResponseTimeMs int64  `json:"response_time_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.ps.RecordAnswer(c.Request.Context(), play.RecordAnswerRequest{
		SessionID:      c.Param("session_id"),
		QuestionID:     req.QuestionID,
		Correct:        req.Correct,
		ResponseTimeMs: req.ResponseTimeMs,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"score":                 resp.Score,
		"completion_percentage": resp.Completion,
	})
}

func (a *API) finishSession(c *gin.Context) {
	var req struct {
		FinalScore *int64 `json:"final_score"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.ps.Finish(c.Request.Context(), play.FinishRequest{
		SessionID:  c.Param("session_id"),
		FinalScore: req.FinalScore,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	newly, all := resp.NewlyUnlocked, resp.AllUnlocked
	if newly == nil {
		newly = []string{}
	}
	if all == nil {
		all = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"score":          resp.Score,
		"total_score":    resp.Total,
		"newly_unlocked": newly,
		"all_unlocked":   all,
	})
}

func (a *API) listSessions(c *gin.Context) {
	sessions, err := a.ps.ListByUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, ps := range sessions {
		views = append(views, toSessionView(ps))
	}

	c.JSON(http.StatusOK, views)
}

type roomView struct {
	Code            string    `json:"code"`
	HostID          string    `json:"host_id"`
	QuizID          string    `json:"quiz_id"`
	Active          bool      `json:"active"`
	DurationMinutes int       `json:"duration_minutes"`
	Participants    []string  `json:"participants"`
	CreateTime      time.Time `json:"create_time"`
	ExpireTime      time.Time `json:"expire_time"`
}

func toRoomView(r domain.Room) roomView {
	participants := r.Participants
	if participants == nil {
		participants = []string{}
	}
	return roomView{
		Code:            r.Code,
		HostID:          r.HostID,
		QuizID:          r.QuizID,
		Active:          r.Active,
		DurationMinutes: r.DurationMinutes,
		Participants:    participants,
		CreateTime:      r.CreateTime,
		ExpireTime:      r.ExpireTime,
	}
}

func (a *API) createRoom(c *gin.Context) {
	var req struct {
		HostID          string `json:"host_id"`
		QuizID          string `json:"quiz_id"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	r, err := a.rms.Create(c.Request.Context(), room.CreateRequest{
		HostID:          req.HostID,
		QuizID:          req.QuizID,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRoomView(*r))
}

func (a *API) getRoom(c *gin.Context) {
	r, err := a.rms.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoomView(*r))
}

func (a *API) joinRoom(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	r, err := a.rms.Join(c.Request.Context(), room.JoinRequest{
		Code:   c.Param("code"),
		UserID: req.UserID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoomView(*r))
}

func (a *API) endRoom(c *gin.Context) {
	r, err := a.rms.End(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRoomView(*r))
}

func (a *API) roomQuestions(c *gin.Context) {
	qs, err := a.rms.Questions(c.Request.Context(), c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuestionViews(qs))
}

type leaderboardView struct {
	Entries []leaderboardEntryView `json:"entries"`
}

type leaderboardEntryView struct {
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
}

func toLeaderboardView(l domain.Leaderboard) leaderboardView {
	entries := make([]leaderboardEntryView, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, leaderboardEntryView{UserID: e.UserID, Score: e.Score})
	}
	return leaderboardView{Entries: entries}
}

func (a *API) topLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	l, err := a.ls.Top(c.Request.Context(), leaderboard.TopRequest{Limit: limit})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboardView(*l))
}

func (a *API) recommendations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	resp, err := a.rec.Get(c.Request.Context(), recommend.Query{
		UserID:   c.Query("user_id"),
		Limit:    limit,
		Policy:   c.Query("policy"),
		MixRatio: c.Query("mix_ratio"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) prewarm(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("user_id is required")))
		return
	}

	a.rec.Prewarm(userID)

	c.JSON(http.StatusOK, gin.H{"prewarmed": true})
}
