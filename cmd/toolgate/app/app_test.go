package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"

	"github.com/jonwraymond/toolgate/config"
)

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"gateway", "toolserver"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("Find(%q) error = %v", name, err)
		}
		if cmd.Name() != name {
			t.Errorf("Find(%q) = %q", name, cmd.Name())
		}
	}
}

func TestGatewayFlags_OverrideEnv(t *testing.T) {
	t.Setenv("GATEWAY_ADDR", ":9000")
	t.Setenv("MCP_SERVER_URL", "http://env.example/mcp")

	v := viper.New()
	cmd := newGatewayCmd(v)
	if err := cmd.ParseFlags([]string{"--addr", ":9100"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := config.Load(context.Background(), v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Addr != ":9100" {
		t.Errorf("Gateway.Addr = %q, want flag value :9100", cfg.Gateway.Addr)
	}
	if cfg.Gateway.ToolServerURL != "http://env.example/mcp" {
		t.Errorf("Gateway.ToolServerURL = %q, want env value", cfg.Gateway.ToolServerURL)
	}
}

func TestNewSessionStore_Memory(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Load(ctx, viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rt := &runtime{cfg: cfg}

	store, check, closeFn, err := rt.newSessionStore(ctx)
	if err != nil {
		t.Fatalf("newSessionStore() error = %v", err)
	}
	defer func() { _ = closeFn() }()
	if store == nil {
		t.Fatal("store is nil")
	}
	if check != nil {
		t.Error("memory backend should not register a health check")
	}
}

func TestNewSessionStore_Redis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", mr.Addr())

	cfg, err := config.Load(ctx, viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rt := &runtime{cfg: cfg}

	store, check, closeFn, err := rt.newSessionStore(ctx)
	if err != nil {
		t.Fatalf("newSessionStore() error = %v", err)
	}
	defer func() { _ = closeFn() }()

	if err := store.Put(ctx, "s1", "opaque-token"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got, err := store.Get(ctx, "s1"); err != nil || got != "opaque-token" {
		t.Errorf("Get() = %q, %v", got, err)
	}
	if check == nil {
		t.Fatal("redis backend should register a health check")
	}
	if res := check.Check(ctx); res.Status.String() != "healthy" {
		t.Errorf("Check() status = %s", res.Status)
	}
}

func TestNewSessionStore_RedisUnreachable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", addr)

	cfg, err := config.Load(ctx, viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rt := &runtime{cfg: cfg}
	if _, _, _, err := rt.newSessionStore(ctx); err == nil {
		t.Fatal("newSessionStore() error = nil, want unreachable backend error")
	}
}
