package params

import "os"

// INFLUXDB_* are read from the environment.
// An empty INFLUXDB_URL disables export.
var (
	INFLUXDB_URL    = os.Getenv("INFLUXDB_URL")
	INFLUXDB_TOKEN  = os.Getenv("INFLUXDB_TOKEN")
	INFLUXDB_ORG    = os.Getenv("INFLUXDB_ORG")
	INFLUXDB_BUCKET = os.Getenv("INFLUXDB_BUCKET")
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func DefaultInfluxConfig() *InfluxConfig {
	return &InfluxConfig{
		URL:    INFLUXDB_URL,
		Token:  INFLUXDB_TOKEN,
		Org:    INFLUXDB_ORG,
		Bucket: INFLUXDB_BUCKET,
	}
}

func (c *InfluxConfig) Enabled() bool {
	return c != nil && c.URL != ""
}
