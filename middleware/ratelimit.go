package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

var (
	rlMu        sync.Mutex
	buckets     = map[string]*bucket{}
	window      = 10 * time.Second
	capacity    = 5
	refillPerWd = capacity

	dupMu   sync.Mutex
	lastMsg = map[string]struct {
		text string
		ts   time.Time
	}{}
	dupTTL = 10 * time.Second

	cgMu     sync.Mutex
	userSem  = map[string]chan struct{}{}
	userConc = 2
)

func SetRateLimitConfig(win time.Duration, cap, conc int) {
	if win <= 0 || cap <= 0 {
		return
	}
	rlMu.Lock()
	window = win
	capacity = cap
	refillPerWd = cap
	buckets = map[string]*bucket{}
	rlMu.Unlock()
	if conc > 0 {
		cgMu.Lock()
		userConc = conc
		userSem = map[string]chan struct{}{}
		cgMu.Unlock()
	}
}

func SetDuplicateTTL(ttl time.Duration) {
	dupMu.Lock()
	dupTTL = ttl
	dupMu.Unlock()
}

func clientIP(c *gin.Context) string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		host, _, _ := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
		ip = host
	}
	return ip
}

// callerKey identifies the caller by API key or admin id, plus address.
func callerKey(c *gin.Context) string {
	who := "anon"
	if key := CurrentAPIKey(c); key != nil {
		who = "key:" + strconv.FormatUint(uint64(key.ID), 10)
	} else if id := CurrentAdminID(c); id != 0 {
		who = "admin:" + strconv.FormatUint(uint64(id), 10)
	}
	return who + "@" + clientIP(c)
}

// RateLimit is a token bucket per caller. The body key is "error" on the
// public API and "msg" on the console.
func RateLimit(bodyKey string) gin.HandlerFunc {
	if bodyKey == "" {
		bodyKey = "error"
	}
	return func(c *gin.Context) {
		key := callerKey(c)
		now := time.Now()

		rlMu.Lock()
		b := buckets[key]
		if b == nil {
			b = &bucket{tokens: capacity, lastRefill: now}
			buckets[key] = b
		}
		elapsed := now.Sub(b.lastRefill)
		if elapsed > 0 {
			add := int(float64(refillPerWd) * (float64(elapsed) / float64(window)))
			if add > 0 {
				b.tokens += add
				if b.tokens > capacity {
					b.tokens = capacity
				}
				b.lastRefill = now
			}
		}
		if b.tokens <= 0 {
			retry := window
			rlMu.Unlock()
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{bodyKey: "too many requests"})
			return
		}
		b.tokens--
		rlMu.Unlock()

		c.Next()
	}
}

// DuplicateGuard reports false when the same sender repeats text within the
// duplicate window.
func DuplicateGuard(sender string, text string) bool {
	now := time.Now()
	text = strings.TrimSpace(text)
	dupMu.Lock()
	defer dupMu.Unlock()
	entry, ok := lastMsg[sender]
	if ok && entry.text == text && now.Sub(entry.ts) < dupTTL {
		return false
	}
	lastMsg[sender] = struct {
		text string
		ts   time.Time
	}{text: text, ts: now}
	return true
}

// AcquireUserSlot blocks until the user has a free concurrency slot.
func AcquireUserSlot(uid string) (release func()) {
	cgMu.Lock()
	sem := userSem[uid]
	if sem == nil {
		sem = make(chan struct{}, userConc)
		userSem[uid] = sem
	}
	cgMu.Unlock()
	sem <- struct{}{}
	return func() { <-sem }
}
