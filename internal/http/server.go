package http

import (
	"container/list"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storeledger/internal/services"
)

// LRU cache with TTL and size-based eviction
type lruCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

func newLRUCache[T any](maxSize int, ttl time.Duration) *lruCache[T] {
	return &lruCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *lruCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if time.Now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

func (c *lruCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Purge drops every cached entry.
func (c *lruCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

func (c *lruCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries
func (c *lruCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if now.After(item.expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

type Server struct {
	http.Server
	catalog     *services.CatalogService
	snapshots   *services.SnapshotService
	wizard      *services.WizardService
	imports     *services.ImportService
	rateLimiter *rateLimiter

	// Dashboard reads are cached and deduplicated; writes purge the caches.
	summaryCache  *lruCache[dashboardSummary]
	timelineCache *lruCache[[]timelinePoint]
	sf            singleflight.Group

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, catalog *services.CatalogService, snapshots *services.SnapshotService, wizard *services.WizardService, imports *services.ImportService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		catalog:          catalog,
		snapshots:        snapshots,
		wizard:           wizard,
		imports:          imports,
		rateLimiter:      newRateLimiter(),
		summaryCache:     newLRUCache[dashboardSummary](100, 5*time.Minute),
		timelineCache:    newLRUCache[[]timelinePoint](100, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	// Start periodic cache cleanup
	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	// Catalog
	mux.HandleFunc("GET /api/stores", s.withSecurityHeaders(s.handleListStores))
	mux.HandleFunc("POST /api/stores", s.withSecurityHeaders(s.handleCreateStore))
	mux.HandleFunc("GET /api/account-types", s.withSecurityHeaders(s.handleListAccountTypes))
	mux.HandleFunc("POST /api/account-types", s.withSecurityHeaders(s.handleCreateAccountType))
	mux.HandleFunc("DELETE /api/account-types/{id}", s.withSecurityHeaders(s.handleDeleteAccountType))
	mux.HandleFunc("GET /api/banks", s.withSecurityHeaders(s.handleListBanks))
	mux.HandleFunc("POST /api/banks", s.withSecurityHeaders(s.handleCreateBank))
	mux.HandleFunc("GET /api/accounts", s.withSecurityHeaders(s.handleListAccounts))
	mux.HandleFunc("POST /api/accounts", s.withSecurityHeaders(s.handleCreateAccount))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.withSecurityHeaders(s.handleDeleteAccount))

	// Snapshots
	mux.HandleFunc("GET /api/snapshots", s.withSecurityHeaders(s.handleListSnapshots))
	mux.HandleFunc("GET /api/snapshots/{id}", s.withSecurityHeaders(s.handleGetSnapshot))
	mux.HandleFunc("GET /api/snapshots/{id}/balance-sheet", s.withSecurityHeaders(s.handleBalanceSheet))
	mux.HandleFunc("GET /api/snapshots/{id}/export", s.withSecurityHeaders(s.handleExportSnapshot))

	// Wizard flow
	mux.HandleFunc("POST /api/wizard/save-draft", s.withSecurityHeaders(s.handleSaveDraft))
	mux.HandleFunc("POST /api/wizard/publish", s.withSecurityHeaders(s.handlePublish))
	mux.HandleFunc("GET /api/wizard/drafts", s.withSecurityHeaders(s.handleListDrafts))
	mux.HandleFunc("GET /api/wizard/drafts/{id}", s.withSecurityHeaders(s.handleGetDraft))
	mux.HandleFunc("DELETE /api/wizard/drafts/{id}", s.withSecurityHeaders(s.handleDeleteDraft))
	mux.HandleFunc("GET /api/wizard/latest-snapshot/{store_id}", s.withSecurityHeaders(s.handleLatestSnapshot))
	mux.HandleFunc("GET /api/wizard/accounts/{store_id}", s.withSecurityHeaders(s.handleWizardAccounts))
	mux.HandleFunc("POST /api/wizard/sessions", s.withSecurityHeaders(s.handleStartWizardSession))
	mux.HandleFunc("GET /api/wizard/sessions/{token}", s.withSecurityHeaders(s.handleGetWizardSession))
	mux.HandleFunc("PUT /api/wizard/sessions/{token}/steps/{step}", s.withSecurityHeaders(s.handleSaveWizardStep))
	mux.HandleFunc("POST /api/wizard/sessions/{token}/complete", s.withSecurityHeaders(s.handleCompleteWizardSession))

	// Dashboard
	mux.HandleFunc("GET /api/dashboard/summary", s.withSecurityHeaders(s.handleDashboardSummary))
	mux.HandleFunc("GET /api/dashboard/timeline", s.withSecurityHeaders(s.handleDashboardTimeline))

	// Import
	mux.HandleFunc("POST /api/import/seed", s.withSecurityHeaders(s.handleSeed))
	mux.HandleFunc("POST /api/import/accounts", s.withSecurityHeaders(s.handleBulkImport))
	mux.HandleFunc("GET /api/import/history", s.withSecurityHeaders(s.handleImportHistory))

	return s
}

// startCacheCleanup runs periodic cleanup for both caches
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			summaryCleaned := s.summaryCache.CleanExpired()
			timelineCleaned := s.timelineCache.CleanExpired()
			if summaryCleaned > 0 || timelineCleaned > 0 {
				slog.Debug("Cache cleanup completed",
					"summary_entries_removed", summaryCleaned,
					"timeline_entries_removed", timelineCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// invalidateDashboards purges cached dashboard reads after a snapshot write.
func (s *Server) invalidateDashboards() {
	s.summaryCache.Purge()
	s.timelineCache.Purge()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Rate limit mutating requests only
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
