package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/apcore/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.ACL.DefaultEffect != "allow" {
		t.Errorf("ACL.DefaultEffect = %s, want allow", got.ACL.DefaultEffect)
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	cfg := h.Get()
	if cfg.Safety.MaxCallDepth != 10 {
		t.Errorf("initial MaxCallDepth = %d, want 10", cfg.Safety.MaxCallDepth)
	}

	newContent := "safety:\n  max_call_depth: 20\n"
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	cfg = h.Get()
	if cfg.Safety.MaxCallDepth != 20 {
		t.Errorf("reloaded MaxCallDepth = %d, want 20", cfg.Safety.MaxCallDepth)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var called bool
	var receivedCfg *config.Config

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		called = true
		receivedCfg = cfg
		mu.Unlock()
	})

	newContent := "logging:\n  level: \"error\"\n"
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if !called {
		t.Error("OnChange callback was not called")
	}
	if receivedCfg == nil || receivedCfg.Logging.Level != "error" {
		t.Errorf("unexpected callback config: %+v", receivedCfg)
	}
	mu.Unlock()
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	invalidContent := "acl:\n  default_effect: \"maybe\"\n"
	if err := os.WriteFile(path, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}

	cfg := h.Get()
	if cfg.ACL.DefaultEffect != "allow" {
		t.Errorf("should keep old config, got ACL.DefaultEffect = %s", cfg.ACL.DefaultEffect)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	newContent := "logging:\n  level: \"warn\"\n"
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	if callCount == 0 {
		t.Error("file watcher did not trigger reload")
	}
	mu.Unlock()

	cfg := h.Get()
	if cfg.Logging.Level != "warn" {
		t.Errorf("after file watch, Logging.Level = %s, want warn", cfg.Logging.Level)
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	fields := config.ReloadableFields()
	if len(fields) == 0 {
		t.Error("ReloadableFields returned empty")
	}
	expected := []string{"acl.default_effect", "logging.level", "safety.max_call_depth"}
	for _, e := range expected {
		if !containsField(fields, e) {
			t.Errorf("%s not in ReloadableFields", e)
		}
	}
}

func TestNonReloadableFields(t *testing.T) {
	fields := config.NonReloadableFields()
	if len(fields) == 0 {
		t.Error("NonReloadableFields returned empty")
	}
	expected := []string{"server.host", "server.port", "registry.roots"}
	for _, e := range expected {
		if !containsField(fields, e) {
			t.Errorf("%s not in NonReloadableFields", e)
		}
	}
}

func containsField(fields []string, target string) bool {
	for _, f := range fields {
		if f == target {
			return true
		}
	}
	return false
}

func TestHolder_MultipleOnChangeCallbacks(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount1, callCount2 int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount1++
		mu.Unlock()
	})
	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount2++
		mu.Unlock()
	})

	newContent := "logging:\n  level: \"debug\"\n"
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	if callCount1 != 1 || callCount2 != 1 {
		t.Errorf("callback counts = %d, %d, want 1, 1", callCount1, callCount2)
	}
	mu.Unlock()
}

func TestHolder_WatchFileWithDifferentFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	dir := filepath.Dir(path)
	otherFile := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(otherFile, []byte("test: data"), 0644); err != nil {
		t.Fatalf("write other file: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	cfg := h.Get()
	if cfg.ACL.DefaultEffect != "allow" {
		t.Errorf("config changed unexpectedly: %+v", cfg.ACL)
	}
}

func TestHolder_StopBeforeWatch(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.Stop()

	if h.Get() == nil {
		t.Fatal("Get returned nil after Stop")
	}
}

func TestHolder_StopAfterWatch(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}
	h.Stop()

	if h.Get() == nil {
		t.Fatal("Get returned nil after Stop")
	}
}

func TestNewHolder_InvalidPath(t *testing.T) {
	_, err := config.NewHolder("/nonexistent/path/config.yaml", zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for nonexistent config path")
	}
}

func TestNewHolder_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "acl:\n  default_effect: \"maybe\"\n")

	_, err := config.NewHolder(path, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
}

// Helpers

func validConfig() string {
	return `
acl:
  default_effect: "allow"

safety:
  max_call_depth: 10
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
