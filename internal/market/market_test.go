package market

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
)

const apiPrefix = "/api/v1/market"

type testNode struct {
	ledger *ledger.Ledger
	hub    *Hub
	engine *gin.Engine
	server *httptest.Server
}

func newTestNode(t *testing.T, requireSignature bool) *testNode {
	gin.SetMode(gin.TestMode)

	l := ledger.New(ledger.NewMemoryStore())
	hub := NewHub()
	l.Subscribe(hub)

	r := gin.New()
	NewService(l, hub, NodeInfo{Name: "test-node", Backend: "memory"}).
		RegisterRoutes(r.Group(apiPrefix), NewAuthenticator(requireSignature, time.Minute, nil))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testNode{ledger: l, hub: hub, engine: r, server: srv}
}

func (n *testNode) url() string {
	return n.server.URL + apiPrefix
}

func (n *testNode) wsURL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http") + apiPrefix + "/events"
}
