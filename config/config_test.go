package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fenrir/domain/asset"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Enable {
		t.Error("matcher enabled by default")
	}
	if cfg.ValidationTimeout != 5*time.Second {
		t.Errorf("validation timeout default: %v", cfg.ValidationTimeout)
	}
	if cfg.ReleaseDelay != 30*time.Second {
		t.Errorf("release delay default: %v", cfg.ReleaseDelay)
	}
	if cfg.MaxOpenOrders != 1000 {
		t.Errorf("max open orders default: %d", cfg.MaxOpenOrders)
	}
	if cfg.ListenAddr() != "0.0.0.0:6886" {
		t.Errorf("listen addr: %s", cfg.ListenAddr())
	}
}

func TestLoadFile(t *testing.T) {
	var aa asset.Asset
	aa[0] = 0xAA
	raw := `
port: 7000
price_assets:
  - NATIVE
  - ` + aa.String() + `
predefined_pairs:
  - ` + aa.String() + `-NATIVE
snapshots_interval: 15s
`
	path := filepath.Join(t.TempDir(), "matcher.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7000 || cfg.SnapshotsInterval != 15*time.Second {
		t.Errorf("file values must override defaults: %+v", cfg)
	}

	assets, err := cfg.PriceAssetList()
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 2 || !assets[0].IsNative() || assets[1] != aa {
		t.Errorf("price assets parsed wrong: %v", assets)
	}

	pairs, err := cfg.PredefinedPairList()
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 || pairs[0].AmountAsset != aa || !pairs[0].PriceAsset.IsNative() {
		t.Errorf("pairs parsed wrong: %v", pairs)
	}
}

func TestBadPairSpec(t *testing.T) {
	cfg := &Config{PredefinedPairs: []string{"no-separator-here-is-fine-but-bad-asset"}}
	if _, err := cfg.PredefinedPairList(); err == nil {
		t.Error("malformed pair spec must fail")
	}
}
