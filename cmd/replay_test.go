package cmd

import (
	"bufio"
	"path/filepath"
	"testing"

	"github.com/Galaxy-Crusader/KalmanLocationManager/catdb/flat"
	"github.com/Galaxy-Crusader/KalmanLocationManager/state"
	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
	"github.com/tidwall/gjson"
)

func TestReplayCmd(t *testing.T) {
	dir := t.TempDir()
	session := flat.NewFlatWithRoot(dir).ForSession("test")
	w, err := session.Create(flat.RecordingFileName)
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(0); i < 30; i++ {
		for _, rec := range []fix.Record{
			{Measurement: &fix.Measurement{Source: fix.SourceSat, T: 1000 + i*1000, Lat: 46.9, Lon: -114.1 + float64(i)*1e-5, Accuracy: 5}},
			{Measurement: &fix.Measurement{Source: fix.SourceNet, T: 1500 + i*1000, Lat: 46.9, Lon: -114.1, Accuracy: 40}},
		} {
			b, err := fix.EncodeRecord(rec)
			if err != nil {
				t.Fatal(err)
			}
			if err := w.WriteLine(b); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "fused.geojson.gz")
	db := filepath.Join(dir, "estimates.db")
	rootCmd.SetArgs([]string{"replay", filepath.Join(session.Path(), flat.RecordingFileName),
		"--out", out, "--store", db, "--forward-raw=false", "--verbosity", "8"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	r, err := flat.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		if src := gjson.GetBytes(scanner.Bytes(), "properties.Source").String(); src != "fused" {
			t.Fatalf("Expected only fused estimates without --forward-raw, got %s", src)
		}
	}
	if n < 100 {
		t.Errorf("Expected a fused estimate every 200ms for 30s, got %d", n)
	}

	st, err := state.Open(db, true)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if got := st.Count(fix.SourceFused); got != n {
		t.Errorf("Expected %d stored estimates, got %d", n, got)
	}
}
