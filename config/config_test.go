package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/reqsercom/snippetsync/locales"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvDSN, EnvDBDriver, EnvReportURL, EnvShopID, EnvLogMode, EnvRedisAddr} {
		t.Setenv(name, "")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	f, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if f.Root != "." {
		t.Fatalf("Root = %q, want .", f.Root)
	}
	if diff := cmp.Diff([]string{"json"}, f.Extensions); diff != "" {
		t.Fatalf("Extensions mismatch (-want +got):\n%s", diff)
	}
	if f.Author != DefaultAuthor || f.Schedule != DefaultSchedule {
		t.Fatalf("Author/Schedule = %q/%q", f.Author, f.Schedule)
	}
	if f.Database.Driver != DriverSQLite {
		t.Fatalf("Database.Driver = %q, want sqlite", f.Database.Driver)
	}
	if f.Database.DSN != filepath.Join(f.DataDir, DatabaseFileName) {
		t.Fatalf("Database.DSN = %q, want file under data dir %q", f.Database.DSN, f.DataDir)
	}
	if f.Database.Migrate == nil || !*f.Database.Migrate {
		t.Fatal("Database.Migrate should default to true")
	}
	if f.Reporter.Timeout != DefaultTimeout || f.Reporter.MaxReports != DefaultMaxReports {
		t.Fatalf("Reporter defaults = %v/%d", f.Reporter.Timeout, f.Reporter.MaxReports)
	}

	root, err := f.AbsRoot()
	if err != nil {
		t.Fatalf("AbsRoot error: %v", err)
	}
	if root != dir {
		t.Fatalf("AbsRoot() = %q, want %q", root, dir)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, `root: custom/apps
extensions: [".JSON", yml]
exclude: ["**/node_modules"]
shop_id: shop-42
locales:
  targets:
    - id: DE
      code: de-DE
      base: true
    - id: S1
      code: en-GB
    - id: S2
      code: en-GB
      enabled: false
reporter:
  endpoint: https://errors.example.test/collect
  timeout: 2s
`)

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if diff := cmp.Diff([]string{"json", "yml"}, f.Extensions); diff != "" {
		t.Fatalf("Extensions mismatch (-want +got):\n%s", diff)
	}
	if f.Reporter.Timeout != 2*time.Second {
		t.Fatalf("Reporter.Timeout = %v, want 2s", f.Reporter.Timeout)
	}

	want := []locales.Target{
		{ID: "DE", Code: "de-DE", Base: true, Enabled: true},
		{ID: "S1", Code: "en-GB", Enabled: true},
		{ID: "S2", Code: "en-GB", Enabled: false},
	}
	if diff := cmp.Diff(want, f.LocaleTargets()); diff != "" {
		t.Fatalf("LocaleTargets mismatch (-want +got):\n%s", diff)
	}

	root, err := f.AbsRoot()
	if err != nil {
		t.Fatalf("AbsRoot error: %v", err)
	}
	if root != filepath.Join(dir, "custom", "apps") {
		t.Fatalf("AbsRoot() = %q", root)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDBDriver, "postgres")
	t.Setenv(EnvDSN, "postgres://u:p@localhost:5432/shop")
	t.Setenv(EnvShopID, "from-env")

	dir := t.TempDir()
	path := writeConfig(t, dir, "shop_id: from-file\n")

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if f.ShopID != "from-env" {
		t.Fatalf("ShopID = %q, want from-env", f.ShopID)
	}
	if f.Database.Driver != DriverPostgres || !strings.HasPrefix(f.Database.DSN, "postgres://") {
		t.Fatalf("Database = %#v", f.Database)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown key", content: "rooot: .\n", wantErr: "rooot"},
		{name: "bad extension", content: "extensions: [xml]\n", wantErr: "unsupported extension"},
		{name: "target without id", content: "locales:\n  targets:\n    - code: de\n", wantErr: "has no id"},
		{name: "target without code", content: "locales:\n  targets:\n    - id: DE\n", wantErr: "has no code"},
		{name: "duplicate target", content: "locales:\n  targets:\n    - {id: DE, code: de}\n    - {id: DE, code: de}\n", wantErr: "declared twice"},
		{name: "store with targets", content: "locales:\n  source: store\n  targets:\n    - {id: DE, code: de}\n", wantErr: "must be empty"},
		{name: "bad source", content: "locales:\n  source: api\n", wantErr: "unknown locales.source"},
		{name: "postgres without dsn", content: "database:\n  driver: postgres\n", wantErr: "database.dsn is required"},
		{name: "bad driver", content: "database:\n  driver: oracle\n", wantErr: "unknown database.driver"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, t.TempDir(), tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestDataDirRespectsXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_DATA_HOME", xdg)
	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir error: %v", err)
	}
	if dir != filepath.Join(xdg, "snippetsync") {
		t.Fatalf("DataDir() = %q", dir)
	}
}
