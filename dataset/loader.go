// Package dataset loads tabular CSV data and splits it into train and test sets.
package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
	"github.com/YuminosukeSato/gridtrack/pkg/log"
)

// Dataset is a numeric table with a header row.
// The last column is conventionally the regression target.
type Dataset struct {
	Columns []string
	Data    *mat.Dense
}

// Rows returns the number of data rows.
func (d *Dataset) Rows() int {
	r, _ := d.Data.Dims()
	return r
}

// LoadOption configures Load
type LoadOption func(*loadConfig)

type loadConfig struct {
	client *http.Client
	logger log.Logger
}

// WithHTTPClient sets the client used for http(s) locators
func WithHTTPClient(c *http.Client) LoadOption {
	return func(lc *loadConfig) {
		lc.client = c
	}
}

// WithLogger sets the logger
func WithLogger(l log.Logger) LoadOption {
	return func(lc *loadConfig) {
		lc.logger = l
	}
}

// Load reads a CSV table with a header row from an http(s) URL, a file://
// URL or a local path. The fetch is attempted once. Blank cells parse as NaN.
// Every failure is reported as a DataUnavailableError carrying the locator.
func Load(ctx context.Context, locator string, opts ...LoadOption) (*Dataset, error) {
	cfg := loadConfig{client: &http.Client{Timeout: 5 * time.Minute}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.GetLogger()
	}
	logger := cfg.logger.With(log.ComponentKey, "dataset", log.SourceKey, locator)

	start := time.Now()
	rc, err := open(ctx, cfg.client, locator)
	if err != nil {
		return nil, errors.NewDataUnavailableError(locator, "fetch failed", err)
	}
	defer rc.Close()

	ds, err := parseCSV(rc)
	if err != nil {
		return nil, errors.NewDataUnavailableError(locator, "parse failed", err)
	}

	logger.Info("Dataset loaded",
		log.OperationKey, log.OperationLoad,
		log.SamplesKey, ds.Rows(),
		log.FeaturesKey, len(ds.Columns)-1,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ds, nil
}

func open(ctx context.Context, client *http.Client, locator string) (io.ReadCloser, error) {
	u, err := url.Parse(locator)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return fetch(ctx, client, locator)
		case "file":
			return os.Open(u.Path)
		}
	}
	return os.Open(locator)
}

func fetch(ctx context.Context, client *http.Client, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http get")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.Newf("unexpected HTTP status %s", resp.Status)
	}
	return resp.Body, nil
}

// parseCSV reads a header row followed by numeric rows.
func parseCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "missing header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	if len(columns) < 2 {
		return nil, errors.Newf("need at least 2 columns, got %d", len(columns))
	}

	var values []float64
	rows := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError carries the line number; field count mismatches land here too
			return nil, errors.Wrap(err, "read row")
		}
		for j, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d, column %q", rows+1, columns[j])
			}
			values = append(values, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "no data rows")
	}

	return &Dataset{
		Columns: columns,
		Data:    mat.NewDense(rows, len(columns), values),
	}, nil
}

func parseCell(cell string) (float64, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Newf("non-numeric value %q", cell)
	}
	return v, nil
}
