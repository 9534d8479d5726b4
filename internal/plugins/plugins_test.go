package plugins

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/0xReLogic/Furnace/internal/config"
	"github.com/0xReLogic/Furnace/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("This is the homepage!"))
	})
}

func TestBuildChainDisabled(t *testing.T) {
	base := okHandler()
	h, err := BuildChain(config.PluginsConfig{Enabled: false, Chain: []config.PluginConfig{{Name: "nope"}}}, base)
	if err != nil {
		t.Fatalf("disabled chain should not fail: %v", err)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Body.String() != "This is the homepage!" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestBuildChainErrors(t *testing.T) {
	if _, err := BuildChain(config.PluginsConfig{Enabled: true}, nil); err == nil {
		t.Error("expected error for nil base handler")
	}

	_, err := BuildChain(config.PluginsConfig{Enabled: true, Chain: []config.PluginConfig{{Name: "nope"}}}, okHandler())
	if err == nil || !strings.Contains(err.Error(), "unknown plugin") {
		t.Errorf("expected unknown plugin error, got %v", err)
	}

	_, err = BuildChain(config.PluginsConfig{Enabled: true, Chain: []config.PluginConfig{{
		Name:   "headers",
		Config: map[string]interface{}{"set": map[string]interface{}{"X-App": 42}},
	}}}, okHandler())
	if err == nil {
		t.Error("expected error for non-string header value")
	}

	_, err = BuildChain(config.PluginsConfig{Enabled: true, Chain: []config.PluginConfig{{
		Name:   "logging",
		Config: map[string]interface{}{"skip_paths": "/metrics"},
	}}}, okHandler())
	if err == nil {
		t.Error("expected error for skip_paths that is not a list")
	}
}

func TestBuildChainOrder(t *testing.T) {
	var order []string
	for _, name := range []string{"test-first", "test-second"} {
		name := name
		Register(name, func(map[string]interface{}) (Middleware, error) {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}, nil
		})
	}

	h, err := BuildChain(config.PluginsConfig{Enabled: true, Chain: []config.PluginConfig{
		{Name: "test-first"},
		{Name: "test-second"},
	}}, okHandler())
	if err != nil {
		t.Fatalf("Failed to build plugin chain: %v", err)
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "test-first,test-second" {
		t.Fatalf("expected first listed plugin to run first, got %v", order)
	}
}

func TestHeadersPlugin(t *testing.T) {
	var seen string
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-From")
	})

	h, err := BuildChain(config.PluginsConfig{Enabled: true, Chain: []config.PluginConfig{{
		Name: "headers",
		Config: map[string]interface{}{
			"set":         map[string]interface{}{"X-App": "Furnace"},
			"request_set": map[string]interface{}{"X-From": "edge"},
		},
	}}}, base)
	if err != nil {
		t.Fatalf("Failed to build plugin chain: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("X-App"); got != "Furnace" {
		t.Errorf("expected X-App header, got %q", got)
	}
	if seen != "edge" {
		t.Errorf("expected request header X-From=edge, got %q", seen)
	}
}

func TestLoggingPlugin(t *testing.T) {
	var buf bytes.Buffer
	restore := logging.Swap(zerolog.New(&buf))
	defer restore()

	h, err := BuildChain(config.PluginsConfig{Enabled: true, Chain: []config.PluginConfig{{
		Name:   "logging",
		Config: map[string]interface{}{"skip_paths": []interface{}{"/metrics"}},
	}}}, okHandler())
	if err != nil {
		t.Fatalf("Failed to build plugin chain: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cpu-intensive?duration=0", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	out := buf.String()
	if strings.Count(out, "request served") != 1 {
		t.Fatalf("expected exactly one access log line, got %q", out)
	}
	for _, want := range []string{`"path":"/cpu-intensive"`, `"query":"duration=0"`, `"status":200`, `"bytes":21`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in access log %q", want, out)
		}
	}
}

func TestNames(t *testing.T) {
	names := strings.Join(Names(), ",")
	if !strings.Contains(names, "headers") || !strings.Contains(names, "logging") {
		t.Fatalf("expected built-in plugins to be registered, got %s", names)
	}
}
