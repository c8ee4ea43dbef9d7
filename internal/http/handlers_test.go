package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"gemchat/internal/domain"
	"gemchat/internal/llm"
	"gemchat/internal/service"
)

type fakeUserRepo struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (f *fakeUserRepo) Create(_ context.Context, user domain.User) error {
	if _, exists := f.usersByEmail[user.Email]; exists {
		return &pgconn.PgError{Code: "23505"}
	}
	f.usersByID[user.ID] = user
	f.usersByEmail[user.Email] = user.ID
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := f.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := f.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return f.GetByID(context.Background(), id)
}

type fakeConvRepo struct {
	mu          sync.Mutex
	convs       map[string]domain.Conversation
	order       []string
	messages    map[string][]domain.Message
	appendCalls int
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:    make(map[string]domain.Conversation),
		messages: make(map[string][]domain.Message),
	}
}

func (f *fakeConvRepo) Create(_ context.Context, conv domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[conv.ID] = conv
	f.order = append(f.order, conv.ID)
	return nil
}

func (f *fakeConvRepo) GetByUser(_ context.Context, id, userID string) (domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok || conv.UserID != userID {
		return domain.Conversation{}, pgx.ErrNoRows
	}
	return conv, nil
}

func (f *fakeConvRepo) ListByUserID(_ context.Context, userID string) ([]domain.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var summaries []domain.ConversationSummary
	for i := len(f.order) - 1; i >= 0; i-- {
		conv := f.convs[f.order[i]]
		if conv.UserID == userID {
			summaries = append(summaries, domain.ConversationSummary{ID: conv.ID, Title: conv.Title})
		}
	}
	return summaries, nil
}

func (f *fakeConvRepo) ListMessages(_ context.Context, conversationID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeConvRepo) AppendTurn(_ context.Context, conversationID, prompt, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	f.messages[conversationID] = append(f.messages[conversationID],
		domain.Message{Role: domain.RoleUser, Content: prompt},
		domain.Message{Role: domain.RoleModel, Content: response},
	)
	return nil
}

type testEnv struct {
	router *gin.Engine
	users  *fakeUserRepo
	convs  *fakeConvRepo
	llm    *llm.MockClient
	jwt    *service.JWTService
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	users := newFakeUserRepo()
	convs := newFakeConvRepo()
	mockLLM := &llm.MockClient{Chunks: []string{"Hi ", "there!"}}

	jwtSvc := service.NewJWTServiceWithStore("test-secret", 15*time.Minute, time.Hour, service.NewMemoryRefreshTokenStore())
	userSvc := service.NewUserService(logger, users, service.NewLoginRateLimiter(time.Minute, 100))
	chatSvc := service.NewChatService(logger, mockLLM, convs)

	userH := NewUserHandler(logger, userSvc, jwtSvc)
	chatH := NewChatHandler(logger, chatSvc)

	return &testEnv{
		router: NewRouter(logger, jwtSvc, userH, chatH),
		users:  users,
		convs:  convs,
		llm:    mockLLM,
		jwt:    jwtSvc,
	}
}

// accessToken emite un access token válido para el user id dado.
func (e *testEnv) accessToken(t *testing.T, userID string) string {
	t.Helper()
	pair, err := e.jwt.GeneratePair(domain.User{ID: userID, Email: userID + "@example.com"})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	return pair.AccessToken
}

func performRequest(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
