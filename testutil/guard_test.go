package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeFatal struct {
	called bool
	msg    string
}

func (f *fakeFatal) Fatalf(format string, args ...any) {
	f.called = true
	f.msg = fmt.Sprintf(format, args...)
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		path string
		want bool
	}{
		{InternalImportForbidden, "quantacore/internal/core", false},
		{InternalImportForbidden, "quantacore/internal/core/sub", true},
		{InternalImportForbidden, "quantacore/pkg/domain", false},
		{RemoteDriverImportForbidden, "quantacore/internal/infra/remote/sqlite", true},
		{RemoteDriverImportForbidden, "quantacore/internal/core", false},
		{ThirdPartyImportForbidden, "quantacore/pkg/domain", false},
		{ThirdPartyImportForbidden, "fmt", false},
		{ThirdPartyImportForbidden, "encoding/json", false},
		{ThirdPartyImportForbidden, "github.com/prometheus/client_golang/prometheus", true},
		{ThirdPartyImportForbidden, "golang.org/x/tools/go/packages", true},
		{ThirdPartyImportForbidden, "modernc.org/sqlite", true},
	}
	for _, c := range cases {
		if got := c.pred(c.path); got != c.want {
			t.Errorf("predicate(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestDirectImportViolationsScansNonTestFiles(t *testing.T) {
	dir := t.TempDir()

	src := []byte(`package tmp
import (
	"fmt"
	"some/forbidden/pkg"
)
func X() { fmt.Println(pkg.V) }`)
	if err := os.WriteFile(filepath.Join(dir, "main.go"), src, 0o600); err != nil {
		t.Fatalf("write main file: %v", err)
	}
	testSrc := []byte(`package tmp
import "some/forbidden/pkg"
var _ = pkg.V`)
	if err := os.WriteFile(filepath.Join(dir, "main_test.go"), testSrc, 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	viols, err := directImportViolations(dir, func(path string) bool {
		return strings.HasPrefix(path, "some/forbidden/")
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "main.go") {
		t.Fatalf("violations = %v", viols)
	}
}

func TestAssertNoDirectImportsPassesOnCleanDir(t *testing.T) {
	dir := t.TempDir()
	src := []byte(`package tmp
import "fmt"
func X() { fmt.Println("ok") }`)
	if err := os.WriteFile(filepath.Join(dir, "main.go"), src, 0o600); err != nil {
		t.Fatalf("write main file: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "forbid nothing")
}

func TestTransitiveDependencyViolationsParsesListOutput(t *testing.T) {
	orig := goListDeps
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nquantacore/pkg/domain\nsome/forbidden/pkg\n"), nil
	}
	defer func() { goListDeps = orig }()

	viols, _, err := transitiveDependencyViolations("./...", func(path string) bool {
		return path == "some/forbidden/pkg"
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(viols) != 1 || viols[0] != "some/forbidden/pkg" {
		t.Fatalf("violations = %v", viols)
	}
}

func TestFailHelpersReportViolations(t *testing.T) {
	var f fakeFatal
	failIfTransitiveViolations(&f, "reason", nil)
	if f.called {
		t.Fatalf("fatal fired on clean result")
	}

	failIfTransitiveViolations(&f, "no drivers", []string{"some/forbidden/pkg"})
	if !f.called || !strings.Contains(f.msg, "no drivers") || !strings.Contains(f.msg, "some/forbidden/pkg") {
		t.Fatalf("fatal message = %q", f.msg)
	}

	f = fakeFatal{}
	failIfDirectViolations(&f, "stdlib only", []string{"x (in main.go)"})
	if !f.called || !strings.Contains(f.msg, "stdlib only") {
		t.Fatalf("fatal message = %q", f.msg)
	}
}
