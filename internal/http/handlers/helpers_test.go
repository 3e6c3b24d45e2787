package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-support-chat/internal/agents"
	"github.com/tbourn/go-support-chat/internal/domain"
	"github.com/tbourn/go-support-chat/internal/llm/llmtest"
	"github.com/tbourn/go-support-chat/internal/repo"
	"github.com/tbourn/go-support-chat/internal/services"
	"github.com/tbourn/go-support-chat/internal/tools"
)

// ---------- test DB + full stack ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type apiFixture struct {
	db         *gorm.DB
	r          *gin.Engine
	h          *Handlers
	model      *llmtest.ChatModel
	classifier *llmtest.Classifier
}

// newAPI wires real services and executors over a scripted model. Every
// agent shares the same model, so turns are consumed in call order.
func newAPI(t *testing.T, label string, turns ...llmtest.Turn) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	convs := services.NewConversationService(db)
	reg := tools.NewAgentRegistry(services.NewOrderService(db), services.NewBillingService(db), convs, nil)
	model := llmtest.NewChatModel(turns...)
	classifier := &llmtest.Classifier{Label: label}
	profiles := agents.DefaultProfiles()
	exec := func(at domain.AgentType) *agents.Executor {
		p, _ := profiles.Get(at)
		return agents.NewExecutor(p, model, reg, agents.ExecutorOptions{MaxToolRounds: 2})
	}
	chat := services.NewChatService(db, agents.NewRouter(classifier, profiles.RouterPrompt),
		exec(domain.AgentSupport), exec(domain.AgentOrder), exec(domain.AgentBilling))

	h := New(chat, convs, agents.NewCatalog(profiles, reg))
	r := gin.New()
	api := r.Group("/api")
	api.POST("/chat/messages", h.PostMessage)
	api.GET("/chat/ws", h.ChatSocket)
	api.GET("/chat/conversations", h.ListConversations)
	api.GET("/chat/conversations/:id", h.GetConversation)
	api.DELETE("/chat/conversations/:id", h.DeleteConversation)
	api.GET("/agents", h.ListAgents)
	api.GET("/agents/:type/capabilities", h.AgentCapabilities)
	r.GET("/health", h.Health)

	return &apiFixture{db: db, r: r, h: h, model: model, classifier: classifier}
}

func (f *apiFixture) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}
