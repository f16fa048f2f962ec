package blob

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestBlobStoreConsumers ensures the artifact store is only consumed by the
// planning exporter and the command binaries. Domain and persistence packages
// must never grow a dependency on blob storage.
func TestBlobStoreConsumers(t *testing.T) {
	blobPrefix := "nurserycore/internal/blob"
	allowedPrefixes := []string{
		"nurserycore/internal/blob",
		"nurserycore/internal/planning",
		"nurserycore/cmd/",
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "nurserycore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if allowedConsumer(pkg.PkgPath, allowedPrefixes) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == blobPrefix || strings.HasPrefix(importPath, blobPrefix+"/") {
				pos := filepath.Join(pkg.PkgPath, "...")
				seen[pos+": "+importPath] = struct{}{}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import of blob store: %s", v)
		}
		t.Fatalf("found %d forbidden imports of the blob store", len(violations))
	}
}

func allowedConsumer(pkgPath string, allowed []string) bool {
	for _, prefix := range allowed {
		if pkgPath == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(pkgPath, prefix) {
			return true
		}
	}
	return false
}
