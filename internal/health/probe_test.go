package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type countingChecker struct {
	calls   atomic.Int32
	healthy bool
}

func (c *countingChecker) Check(context.Context) CheckResult {
	c.calls.Add(1)
	return CheckResult{Name: "fake", Healthy: c.healthy}
}

func TestProbeRunnerReportsUnhealthy(t *testing.T) {
	ok := &countingChecker{healthy: true}
	bad := &countingChecker{healthy: false}
	ready, results := NewProbeRunner(time.Second, 0, ok, bad).Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestProbeRunnerCachesResults(t *testing.T) {
	c := &countingChecker{healthy: true}
	p := NewProbeRunner(time.Second, time.Minute, c)
	for i := 0; i < 3; i++ {
		if ready, _ := p.Ready(context.Background()); !ready {
			t.Fatal("expected ready")
		}
	}
	if c.calls.Load() != 1 {
		t.Fatalf("expected a single check within cache ttl, got %d", c.calls.Load())
	}
}

func TestDBAndRedisCheckers(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:health_probe?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ready, results := NewProbeRunner(time.Second, 0, NewDBChecker(db), NewRedisChecker(client)).Ready(context.Background())
	if !ready {
		t.Fatalf("expected ready, got %+v", results)
	}

	server.Close()
	res := NewRedisChecker(client).Check(context.Background())
	if res.Healthy || res.Error == "" {
		t.Fatalf("expected redis check to fail after shutdown, got %+v", res)
	}
}
