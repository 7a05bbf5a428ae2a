package bootstrap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ssciwr/afwizard/bootstrap"
	"github.com/ssciwr/afwizard/config"
)

// testConfig builds a default configuration in a hermetic session
// directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "xdg"))

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig(t)

	a, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if a.Engine == nil {
		t.Error("Engine not wired")
	}
	if a.Union == nil {
		t.Error("Union not composed")
	}
	if got := len(a.Backends.All()); got != 3 {
		t.Errorf("registered backends = %d, want 3", got)
	}
	if a.Journal != nil || a.DB != nil {
		t.Error("journal wired although disabled")
	}
	if got := len(a.Libraries.Libraries()); got != 1 {
		t.Errorf("libraries = %d, want just the working directory", got)
	}
}

func TestNew_WithJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Journal.Enabled = true
	cfg.Journal.Path = "journal.db"

	a, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if a.Journal == nil || a.DB == nil {
		t.Fatal("journal not wired")
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "journal.db")); err != nil {
		t.Errorf("journal database not created under the data directory: %v", err)
	}
}

func TestNew_WithConfiguredLibraries(t *testing.T) {
	cfg := testConfig(t)
	libDir := t.TempDir()
	cfg.Libraries = []config.LibraryConfig{{Path: libDir, Name: "Site filters", Recursive: true}}

	a, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	libs := a.Libraries.Libraries()
	if len(libs) != 2 {
		t.Fatalf("libraries = %d, want the working directory and the configured one", len(libs))
	}
	last := libs[len(libs)-1]
	if last.Name != "Site filters" || !last.Recursive {
		t.Errorf("configured library = %+v", last)
	}
}

func TestNew_MissingCurrentLibrary(t *testing.T) {
	cfg := testConfig(t)
	cfg.CurrentLibrary = filepath.Join(t.TempDir(), "does-not-exist")

	if _, err := bootstrap.New(cfg); err == nil {
		t.Fatal("expected error for a missing current library")
	}
}

func TestNew_LogFile(t *testing.T) {
	cfg := testConfig(t)
	logPath := filepath.Join(t.TempDir(), "afwizard.log")
	cfg.Logging.File = logPath

	a, err := bootstrap.New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer a.Close()

	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
