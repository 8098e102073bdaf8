package params

import (
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/mitchellh/go-homedir"
)

func init() {
	metrics.Enabled = true
}

const (
	StoreDBName    = "estimates.db"
	ConfigFileName = ".kalmanlocation"
	EnvPrefix      = "KALMANLOC"
)

var DatadirRoot = func() string {
	home, err := homedir.Dir()
	if err != nil {
		panic(err)
	}
	return filepath.Join(home, ".kalmanlocation")
}()

var (
	// CacheLastKnownTTL bounds how long a last-known estimate is served after its source goes quiet.
	CacheLastKnownTTL = 10 * time.Minute
)

var DefaultBatchSize = 1_000

type StoreConfig struct {
	// Path is the bbolt database file.
	// Empty disables the store.
	Path string
}

func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Path: filepath.Join(DatadirRoot, StoreDBName),
	}
}
