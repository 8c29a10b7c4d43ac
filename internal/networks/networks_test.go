package networks

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTableLookups(t *testing.T) {
	table := Default()

	router, ok := table.RouterContractID(Testnet)
	if !ok || router != "0.0.19264" {
		t.Fatalf("unexpected testnet router %q (ok=%v)", router, ok)
	}
	whbar, ok := table.WrappedNativeAddress(Mainnet)
	if !ok || whbar != "0x0000000000000000000000000000000000163b5a" {
		t.Fatalf("unexpected mainnet WHBAR %q (ok=%v)", whbar, ok)
	}
	if names := table.Names(); len(names) != 2 || names[0] != Mainnet || names[1] != Testnet {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestUnknownNetworkIsNotFound(t *testing.T) {
	table := Default()
	unknown := Name("previewnet")

	if _, ok := table.RouterContractID(unknown); ok {
		t.Fatal("expected router lookup to miss")
	}
	if _, ok := table.WrappedNativeAddress(unknown); ok {
		t.Fatal("expected WHBAR lookup to miss")
	}
	if _, ok := table.MirrorNodeURL(unknown); ok {
		t.Fatal("expected mirror lookup to miss")
	}
	if _, ok := (Table{}).MirrorNodeURL(Testnet); ok {
		t.Fatal("expected empty table to miss")
	}
}

func TestParse(t *testing.T) {
	if name, ok := Parse(" TestNet "); !ok || name != Testnet {
		t.Fatalf("unexpected parse result %q %v", name, ok)
	}
	if _, ok := Parse("previewnet"); ok {
		t.Fatal("previewnet must not be supported")
	}
}

func TestLoadTableOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "networks.yaml")
	content := []byte(`networks:
  testnet:
    mirror_node_url: http://localhost:5551/api/v1/
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write overrides: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	mirror, _ := table.MirrorNodeURL(Testnet)
	if mirror != "http://localhost:5551/api/v1" {
		t.Fatalf("unexpected mirror url %q", mirror)
	}
	router, _ := table.RouterContractID(Testnet)
	if router != "0.0.19264" {
		t.Fatalf("override must keep untouched fields, got %q", router)
	}
	if got, _ := Default().MirrorNodeURL(Testnet); got == mirror {
		t.Fatal("defaults must not be mutated by overrides")
	}
}

func TestLoadTableRejectsUnknownNetwork(t *testing.T) {
	_, err := ApplyOverrides(Overrides{Networks: map[string]Deployment{"localnet": {}}})
	if err == nil {
		t.Fatal("expected unknown network to be rejected")
	}
}
