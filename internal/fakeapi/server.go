// Package fakeapi is an in-memory stand-in for the finance backend. It
// speaks the same wire contract as the real service and is used for local
// development (`fintrack fake-api`) and integration tests.
package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"fintrack/internal/clock"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// table holds one collection's records per token.
type table[T core.Record] struct {
	byToken map[string][]T
}

func newTable[T core.Record]() *table[T] {
	return &table[T]{byToken: make(map[string][]T)}
}

func (t *table[T]) list(token string) []T {
	out := make([]T, len(t.byToken[token]))
	copy(out, t.byToken[token])
	return out
}

func (t *table[T]) remove(token string, id int64) bool {
	records := t.byToken[token]
	for i, r := range records {
		if r.RecordID() == id {
			t.byToken[token] = append(records[:i:i], records[i+1:]...)
			return true
		}
	}
	return false
}

// Server is the fake backend. All state lives in memory and is guarded by mu.
type Server struct {
	logger *log.Logger
	clock  clock.Clock

	mu         sync.Mutex
	tokens     map[string]bool
	nextID     int64
	tickets    *table[core.Ticket]
	expenses   *table[core.Expense]
	revenues   *table[core.Revenue]
	categories *table[core.Category]

	engine *gin.Engine
	http   *http.Server
}

func NewServer(logger *log.Logger, clk clock.Clock) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if clk == nil {
		clk = clock.Real()
	}
	s := &Server{
		logger:     logger.WithComponent(log.ComponentFakeAPI),
		clock:      clk,
		tokens:     make(map[string]bool),
		tickets:    newTable[core.Ticket](),
		expenses:   newTable[core.Expense](),
		revenues:   newTable[core.Revenue](),
		categories: newTable[core.Category](),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	api := r.Group("/api")
	api.GET("/tickets/user", s.authorized(s.listTickets))
	api.POST("/tickets/upload", s.uploadTicket)
	api.POST("/tickets/delete", s.deleteHandler(func(token string, id int64) bool { return s.tickets.remove(token, id) }))
	api.POST("/tickets/stats", s.statsHandler(func(token string) core.Stats {
		return core.ComputeStats(s.tickets.list(token), s.clock.Now())
	}))

	api.GET("/expenses/user", s.authorized(listHandler(s, s.expenses)))
	api.POST("/expenses/delete", s.deleteHandler(func(token string, id int64) bool { return s.expenses.remove(token, id) }))
	api.POST("/expenses/stats", s.statsHandler(func(token string) core.Stats {
		return amountStats(s.expenses.list(token), func(e core.Expense) (core.Money, core.Date) { return e.Amount, e.Date }, s.clock.Now())
	}))

	api.GET("/revenues/user", s.authorized(listHandler(s, s.revenues)))
	api.POST("/revenues/delete", s.deleteHandler(func(token string, id int64) bool { return s.revenues.remove(token, id) }))
	api.POST("/revenues/stats", s.statsHandler(func(token string) core.Stats {
		return amountStats(s.revenues.list(token), func(r core.Revenue) (core.Money, core.Date) { return r.Amount, r.Date }, s.clock.Now())
	}))

	api.GET("/categories/user", s.authorized(listHandler(s, s.categories)))
	api.POST("/categories/delete", s.deleteHandler(func(token string, id int64) bool { return s.categories.remove(token, id) }))
	return r
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.engine }

// AddToken registers a token as a valid session.
func (s *Server) AddToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
}

// RevokeToken makes later requests with token fail with 401.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *Server) allocID() int64 {
	s.nextID++
	return s.nextID
}

// SeedTickets stores tickets for token, assigning ids to those without one.
func (s *Server) SeedTickets(token string, tickets ...core.Ticket) []core.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
	for i := range tickets {
		if tickets[i].ID == 0 {
			tickets[i].ID = s.allocID()
		} else if tickets[i].ID > s.nextID {
			s.nextID = tickets[i].ID
		}
		if tickets[i].CreatedAt.IsZero() {
			tickets[i].CreatedAt = core.Date{Time: s.clock.Now().UTC()}
		}
	}
	s.tickets.byToken[token] = append(s.tickets.byToken[token], tickets...)
	return tickets
}

func (s *Server) SeedExpenses(token string, expenses ...core.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
	for i := range expenses {
		if expenses[i].ID == 0 {
			expenses[i].ID = s.allocID()
		}
	}
	s.expenses.byToken[token] = append(s.expenses.byToken[token], expenses...)
}

func (s *Server) SeedRevenues(token string, revenues ...core.Revenue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
	for i := range revenues {
		if revenues[i].ID == 0 {
			revenues[i].ID = s.allocID()
		}
	}
	s.revenues.byToken[token] = append(s.revenues.byToken[token], revenues...)
}

func (s *Server) SeedCategories(token string, categories ...core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
	for i := range categories {
		if categories[i].ID == 0 {
			categories[i].ID = s.allocID()
		}
	}
	s.categories.byToken[token] = append(s.categories.byToken[token], categories...)
}

// Tickets returns a copy of token's tickets.
func (s *Server) Tickets(token string) []core.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets.list(token)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Fake API listening", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen on %s: %w", addr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown fake API: %w", err)
	}
	s.logger.Info("Fake API stopped")
	return nil
}
