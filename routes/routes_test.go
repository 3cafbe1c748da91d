package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"DaryoAI/middleware"
	"DaryoAI/models"
	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/config"
	"DaryoAI/pkg/database"
	"DaryoAI/pkg/llm"
	"DaryoAI/pkg/prompt"
	"DaryoAI/pkg/selector"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"
	"DaryoAI/pkg/usage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

type testServer struct {
	r   *gin.Engine
	db  *gorm.DB
	key models.APIKey
}

func newTestServer(t *testing.T, dailyLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.JWTSecret = "test-secret"
	middleware.SetRateLimitConfig(time.Second, 1000, 2)
	middleware.SetDuplicateTTL(time.Millisecond)

	db, err := database.Connect(database.Config{Driver: "sqlite", DSN: ":memory:"}, true)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	ctx := context.Background()
	if err := database.SeedUsageLimits(ctx, db, dailyLimit, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cat := catalog.New(db, nil, 0, nil)
	ingester := services.NewIngester(db, cat, nil)
	if _, err := ingester.Import(ctx, []services.Row{
		{Heading: "Elections", Content: "Vote on Sunday.", Categories: []string{"Politics"}},
		{Heading: "Derby", Content: "Derby ended 2-1.", Categories: []string{"Sports"}},
	}); err != nil {
		t.Fatalf("import: %v", err)
	}

	limiter := usage.NewLimiter(db, time.UTC)
	key, err := limiter.CreateKey(ctx, "partner", 100000)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	admin := models.Admin{Username: "editor"}
	if err := admin.SetPassword("daryo2026"); err != nil {
		t.Fatalf("password: %v", err)
	}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("admin: %v", err)
	}

	model := llm.NewLocal()
	assembler := prompt.NewAssembler(prompt.Default(), false)
	sessions := session.NewStore(db, 0, nil)
	chat := services.NewChatService(sessions, limiter, selector.NewModelSelector(cat, model, assembler, nil), assembler, model, nil)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	chat.SetClock(func() time.Time { return now })

	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:       db,
		Chat:     chat,
		Sessions: sessions,
		Limiter:  limiter,
		Catalog:  cat,
		Ingester: ingester,
	})
	return &testServer{r: r, db: db, key: key}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (s *testServer) api() map[string]string {
	return map[string]string{middleware.APIKeyHeader: s.key.Key}
}

func TestConversationEndToEnd(t *testing.T) {
	s := newTestServer(t, 20)

	w, out := s.do(t, http.MethodPost, "/conversation", gin.H{
		"external_id": "tg-42", "name": "Ali", "email": "ali@example.com", "message": "Sports: derby natijasi?",
	}, s.api())
	if w.Code != http.StatusOK {
		t.Fatalf("POST = %d %s", w.Code, w.Body.String())
	}
	if text, _ := out["response"].(string); !strings.Contains(text, "Qisqacha javob") {
		t.Fatalf("unexpected response %q", out["response"])
	}

	var client models.Client
	if err := s.db.Where("external_id = ?", "tg-42").First(&client).Error; err != nil {
		t.Fatalf("client not created: %v", err)
	}
	var count int64
	s.db.Model(&models.Message{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 stored messages, got %d", count)
	}
	var key models.APIKey
	s.db.First(&key, s.key.ID)
	if key.TokensUsed <= 0 {
		t.Fatalf("tokens were not accounted")
	}

	w, out = s.do(t, http.MethodGet, "/conversation?external_id=tg-42", nil, s.api())
	if w.Code != http.StatusOK {
		t.Fatalf("GET = %d %s", w.Code, w.Body.String())
	}
	msgs, _ := out["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %v", out["messages"])
	}
	first, _ := msgs[0].(map[string]any)
	if first["sender"] != models.SenderClient || first["content"] != "Sports: derby natijasi?" {
		t.Fatalf("first message = %v", first)
	}
	if c, _ := out["client"].(map[string]any); c["external_id"] != "tg-42" {
		t.Fatalf("client = %v", out["client"])
	}
}

func TestConversationErrors(t *testing.T) {
	s := newTestServer(t, 1)

	cases := []struct {
		name    string
		method  string
		path    string
		body    any
		headers map[string]string
		code    int
		errText string
	}{
		{"no key", http.MethodPost, "/conversation", gin.H{"external_id": "a", "message": "hi"}, nil, http.StatusUnauthorized, "API key required"},
		{"bad key", http.MethodPost, "/conversation", gin.H{"external_id": "a", "message": "hi"}, map[string]string{middleware.APIKeyHeader: "nope"}, http.StatusForbidden, "Invalid or inactive API key"},
		{"no message", http.MethodPost, "/conversation", gin.H{"external_id": "a"}, s.api(), http.StatusBadRequest, "User message is required."},
		{"no external id", http.MethodPost, "/conversation", gin.H{"message": "hi"}, s.api(), http.StatusBadRequest, "Client external_id is required."},
		{"get without id", http.MethodGet, "/conversation", nil, s.api(), http.StatusBadRequest, "Client external_id is required."},
		{"get unknown", http.MethodGet, "/conversation?external_id=ghost", nil, s.api(), http.StatusNotFound, "Client not found."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, out := s.do(t, tc.method, tc.path, tc.body, tc.headers)
			if w.Code != tc.code || out["error"] != tc.errText {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}

	if w, _ := s.do(t, http.MethodPost, "/conversation", gin.H{"external_id": "b", "message": "birinchi"}, s.api()); w.Code != http.StatusOK {
		t.Fatalf("first message = %d", w.Code)
	}
	w, out := s.do(t, http.MethodPost, "/conversation", gin.H{"external_id": "b", "message": "ikkinchi"}, s.api())
	if w.Code != http.StatusForbidden {
		t.Fatalf("daily limit = %d %s", w.Code, w.Body.String())
	}
	if text, _ := out["error"].(string); !strings.Contains(text, "12 soat 0 daqiqadan") {
		t.Fatalf("countdown text = %q", text)
	}
}

func TestAdminConsole(t *testing.T) {
	s := newTestServer(t, 20)
	if w, _ := s.do(t, http.MethodPost, "/conversation", gin.H{"external_id": "tg-7", "message": "salom"}, s.api()); w.Code != http.StatusOK {
		t.Fatalf("seed conversation = %d", w.Code)
	}

	if w, _ := s.do(t, http.MethodPost, "/admin/login", gin.H{"username": "editor", "password": "wrong1234"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", w.Code)
	}
	w, out := s.do(t, http.MethodPost, "/admin/login", gin.H{"username": "editor", "password": "daryo2026"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
	auth := map[string]string{"Authorization": "Bearer " + out["access_token"].(string)}

	if w, _ := s.do(t, http.MethodGet, "/admin/conversations", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("console without token = %d", w.Code)
	}
	w, out = s.do(t, http.MethodGet, "/admin/conversations", nil, auth)
	if w.Code != http.StatusOK || out["total"].(float64) != 1 {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	item := out["items"].([]any)[0].(map[string]any)
	convID := int(item["id"].(float64))
	clientID := int(item["client_id"].(float64))

	path := "/admin/conversations/" + strconv.Itoa(convID) + "/chat"
	if w, out := s.do(t, http.MethodPost, path, gin.H{"message": " "}, auth); w.Code != http.StatusBadRequest || out["msg"] != "Iltimos, xabar kiriting." {
		t.Fatalf("empty console input = %d %s", w.Code, w.Body.String())
	}
	w, out = s.do(t, http.MethodPost, path, gin.H{"message": "Politics yangiliklari"}, auth)
	if w.Code != http.StatusCreated || !strings.Contains(out["response"].(string), "Qisqacha javob") {
		t.Fatalf("console reply = %d %s", w.Code, w.Body.String())
	}
	w, out = s.do(t, http.MethodGet, path, nil, auth)
	if w.Code != http.StatusOK || len(out["messages"].([]any)) != 4 {
		t.Fatalf("chat view = %d %s", w.Code, w.Body.String())
	}

	w, out = s.do(t, http.MethodPut, "/admin/clients/"+strconv.Itoa(clientID)+"/muhbir", gin.H{"is_muhbir": true}, auth)
	if w.Code != http.StatusOK || out["is_muhbir"] != true {
		t.Fatalf("muhbir = %d %s", w.Code, w.Body.String())
	}

	if w, _ := s.do(t, http.MethodPut, "/admin/usage-limits", gin.H{"is_muhbir": true, "daily_limit": 250}, auth); w.Code != http.StatusOK {
		t.Fatalf("usage limit = %d", w.Code)
	}
	w, out = s.do(t, http.MethodPost, "/admin/api-keys", gin.H{"name": "mobile", "token_limit": 5000}, auth)
	if w.Code != http.StatusCreated || out["key"] == "" {
		t.Fatalf("create key = %d %s", w.Code, w.Body.String())
	}
	newKey := out["key"].(string)
	w, _ = s.do(t, http.MethodPatch, "/admin/api-keys/"+strconv.Itoa(int(out["id"].(float64))), gin.H{"is_active": false}, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate = %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodGet, "/conversation?external_id=tg-7", nil, map[string]string{middleware.APIKeyHeader: newKey}); w.Code != http.StatusForbidden {
		t.Fatalf("inactive key = %d", w.Code)
	}

	w, out = s.do(t, http.MethodGet, "/admin/corpus/catalog", nil, auth)
	if w.Code != http.StatusOK || out["catalog"] != "id:(1)-category:(Politics);\nid:(2)-category:(Sports);" {
		t.Fatalf("catalog preview = %d %s", w.Code, w.Body.String())
	}

	if w, _ := s.do(t, http.MethodPost, "/admin/logout", nil, auth); w.Code != http.StatusOK {
		t.Fatalf("logout = %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodGet, "/admin/conversations", nil, auth); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token still accepted: %d", w.Code)
	}
}

func TestConsoleWebSocket(t *testing.T) {
	s := newTestServer(t, 20)
	if w, _ := s.do(t, http.MethodPost, "/conversation", gin.H{"external_id": "tg-9", "message": "salom"}, s.api()); w.Code != http.StatusOK {
		t.Fatalf("seed conversation = %d", w.Code)
	}
	var conv models.Conversation
	if err := s.db.First(&conv).Error; err != nil {
		t.Fatalf("conversation: %v", err)
	}
	var admin models.Admin
	s.db.First(&admin)
	token, _, err := middleware.IssueAdminToken(admin.ID, time.Now())
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	srv := httptest.NewServer(s.r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/ws/console"

	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token must be refused")
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(gin.H{"type": "start", "message": "Sports derby", "conversation_id": conv.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}

	var types []string
	var text strings.Builder
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (events so far %v)", err, types)
		}
		typ, _ := ev["type"].(string)
		types = append(types, typ)
		if typ == "delta" {
			text.WriteString(ev["data"].(string))
		}
		if typ == "done" || typ == "error" {
			break
		}
	}
	if types[0] != "accepted" || types[len(types)-1] != "done" || len(types) < 3 {
		t.Fatalf("events = %v", types)
	}
	if !strings.Contains(text.String(), "Qisqacha javob") {
		t.Fatalf("streamed text = %q", text.String())
	}

	var stored []models.Message
	s.db.Where("conversation_id = ?", conv.ID).Order("timestamp, id").Find(&stored)
	if len(stored) != 4 || stored[2].Content != "Sports derby" {
		t.Fatalf("stored = %+v", stored)
	}
}
