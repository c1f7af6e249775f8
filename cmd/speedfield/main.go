// Command speedfield reconstructs traffic quantities on a location x time grid
// from a CSV file of sparse measurements.
//
// Input rows are source,quantity,location_m,time_s,value_si. The output CSV
// has one row per grid cell with the estimates in display units.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/speedfield/internal/config"
	"github.com/banshee-data/speedfield/internal/fusion"
	"github.com/banshee-data/speedfield/internal/monitoring"
	"github.com/banshee-data/speedfield/internal/quantity"
	"github.com/banshee-data/speedfield/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a filter config JSON file (defaults when empty)")
	dataPath    = flag.String("data", "", "Measurement CSV (source,quantity,location_m,time_s,value_si); - for stdin")
	quantities  = flag.String("quantity", "speed", "Comma separated quantities to estimate, each optionally name:unit (e.g. speed:mph)")
	xAxis       = flag.String("x", "0:100:1000", "Location grid min:step:max in m")
	tAxis       = flag.String("t", "0:60:3600", "Time grid min:step:max in s")
	outPath     = flag.String("out", "", "Output CSV path (stdout when empty)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if err := run(); err != nil {
		log.Fatalf("speedfield: %v", err)
	}
}

func run() error {
	cfg := config.EmptyFilterConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFilterConfig(*configPath); err != nil {
			return err
		}
	}
	qs, err := parseQuantities(*quantities)
	if err != nil {
		return err
	}
	x, err := parseAxis(*xAxis)
	if err != nil {
		return fmt.Errorf("-x: %w", err)
	}
	t, err := parseAxis(*tAxis)
	if err != nil {
		return fmt.Errorf("-t: %w", err)
	}

	engine, err := fusion.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(*dataPath)
	if err != nil {
		return err
	}
	n, err := loadMeasurements(in, engine)
	closeIn()
	if err != nil {
		return err
	}

	id := uuid.New()
	monitoring.Logf("[Filter] run %s: %s, %d measurements, %s filter on %v by %v",
		id, version.String(), n, cfg.GetAlgorithm(), x, t)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		<-sig
		monitoring.Logf("[Filter] run %s: interrupt requested", id)
		engine.Interrupt()
	}()

	res, err := filter(engine, cfg.GetAlgorithm(), x, t, qs)
	if err != nil {
		return err
	}
	if res == nil {
		return errors.New("filter interrupted")
	}

	if *outPath == "" {
		return writeResult(os.Stdout, res)
	}
	return writeResultFile(*outPath, res)
}

// writeResultFile writes the result CSV to path. A failed close is reported
// since it may hide a failed write.
func writeResultFile(path string, res *fusion.FilterResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeResult(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func filter(e *fusion.Engine, algorithm string, x, t fusion.Axis, qs []quantity.Quantity) (*fusion.FilterResult, error) {
	if algorithm == config.AlgorithmFast {
		return e.FilterFastSI(x, t, qs...)
	}
	return e.FilterSI(x.Points(), t.Points(), qs...)
}

func openInput(path string) (io.Reader, func(), error) {
	switch path {
	case "":
		return nil, nil, errors.New("-data is required")
	case "-":
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// parseAxis reads "min:step:max".
func parseAxis(s string) (fusion.Axis, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return fusion.Axis{}, fmt.Errorf("axis %q: want min:step:max", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fusion.Axis{}, fmt.Errorf("axis %q: %w", s, err)
		}
		v[i] = f
	}
	a := fusion.Axis{Min: v[0], Step: v[1], Max: v[2]}
	return a, a.Validate()
}

// parseQuantities reads "name[:unit],...". The unit only changes how the
// estimate is written out.
func parseQuantities(s string) ([]quantity.Quantity, error) {
	var qs []quantity.Quantity
	for _, field := range strings.Split(s, ",") {
		if strings.TrimSpace(field) == "" {
			continue
		}
		name, unit, hasUnit := strings.Cut(field, ":")
		name = strings.TrimSpace(name)
		q, ok := quantity.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown quantity %q", name)
		}
		if hasUnit {
			var err error
			if q, err = q.WithUnit(strings.TrimSpace(unit)); err != nil {
				return nil, err
			}
		}
		qs = append(qs, q)
	}
	if len(qs) == 0 {
		return nil, errors.New("no quantity requested")
	}
	return qs, nil
}

// loadMeasurements adds every CSV row to its source's stream. Streams missing
// from the config are created with unit reliability. A header row is skipped.
func loadMeasurements(r io.Reader, e *fusion.Engine) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	n := 0
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if row == 1 && strings.EqualFold(rec[0], "source") {
			continue
		}

		q, ok := quantity.Lookup(rec[1])
		if !ok {
			return n, fmt.Errorf("row %d: unknown quantity %q", row, rec[1])
		}
		var v [3]float64
		for i, field := range rec[2:] {
			if v[i], err = strconv.ParseFloat(field, 64); err != nil {
				return n, fmt.Errorf("row %d: %w", row, err)
			}
		}

		name := rec[0]
		if name == "" {
			name = fusion.DefaultSourceName
		}
		src, err := e.DataSource(name)
		if err != nil {
			return n, fmt.Errorf("row %d: %w", row, err)
		}
		ds, ok := src.Stream(q)
		if !ok {
			if ds, err = src.AddStreamSI(q, 1, 1); err != nil {
				return n, fmt.Errorf("row %d: %w", row, err)
			}
		}
		if err := e.AddStreamPointDataSI(ds, v[0], v[1], v[2]); err != nil {
			return n, fmt.Errorf("row %d: %w", row, err)
		}
		n++
	}
}

// writeResult prints one row per cell; cells without data are left empty.
func writeResult(w io.Writer, res *fusion.FilterResult) error {
	qs := res.Quantities()
	header := []string{"location_m", "time_s"}
	grids := make([][][]float64, len(qs))
	for k, q := range qs {
		header = append(header, q.String())
		g, err := res.Get(q)
		if err != nil {
			return err
		}
		grids[k] = g
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	times := res.Times()
	for i, x := range res.Locations() {
		for j, t := range times {
			row := []string{fmtFloat(x), fmtFloat(t)}
			for _, g := range grids {
				row = append(row, fmtFloat(g[i][j]))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
