package experiment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/gridtrack/config"
	"github.com/YuminosukeSato/gridtrack/modelselection"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
	"github.com/YuminosukeSato/gridtrack/tracking"
)

// writeHousingCSV writes n rows of a synthetic table shaped like the
// California housing data: 8 numeric features and median_house_value last.
func writeHousingCSV(t testing.TB, n int) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(42, 7))

	var b strings.Builder
	b.WriteString("longitude,latitude,housing_median_age,total_rooms,total_bedrooms,population,households,median_income,median_house_value\n")
	for i := 0; i < n; i++ {
		lon := -124 + rng.Float64()*10
		lat := 32 + rng.Float64()*10
		age := 1 + rng.Float64()*51
		rooms := 100 + rng.Float64()*5000
		bedrooms := rooms * (0.15 + rng.Float64()*0.1)
		pop := 50 + rng.Float64()*3000
		households := pop / (2 + rng.Float64()*2)
		income := 0.5 + rng.Float64()*10
		value := 40000*income + 1000*age - 3000*(lat-32) + rng.NormFloat64()*5000
		fmt.Fprintf(&b, "%.2f,%.2f,%.0f,%.0f,%.0f,%.0f,%.0f,%.4f,%.1f\n",
			lon, lat, age, rooms, bedrooms, pop, households, income, value)
	}

	path := filepath.Join(t.TempDir(), "housing.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func quietLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelError)
	return l
}

// testConfig returns a small, seeded configuration reading dataPath and
// tracking into a temporary directory.
func testConfig(t testing.TB, dataPath string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	seed := uint64(1)

	cfg.Data.URL = dataPath
	cfg.Search.ParamGrid = modelselection.Grid{
		"random_forest": {
			"n_estimators": {5, 10},
			"max_depth":    {6},
		},
	}
	cfg.Search.Verbose = 0
	cfg.RandomState = &seed
	cfg.Tracking.StorePath = filepath.Join(dir, "tracking.db")
	cfg.Tracking.ArtifactRoot = filepath.Join(dir, "artifacts")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func openClient(t testing.TB, cfg *config.Config) *tracking.Client {
	t.Helper()
	c, err := tracking.Open(context.Background(), cfg.Tracking.StorePath, cfg.Tracking.ArtifactRoot, "",
		tracking.WithClientLogger(quietLogger()))
	if err != nil {
		t.Fatalf("tracking.Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
