package catalog

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Al3xBlack0ut/satelity/internal/orbit"
)

// Entry is one parsed TLE: identity, epoch, the raw lines (kept for SGP4
// validation), and the mean elements lifted from line 2.
type Entry struct {
	NORADID          int
	Name             string
	Epoch            time.Time
	Line1            string
	Line2            string
	InclinationDeg   float64
	RAANDeg          float64
	Eccentricity     float64
	ArgPerigeeDeg    float64
	MeanAnomalyDeg   float64
	MeanMotionRevDay float64
}

// CircularElements reduces the entry's mean elements to the circular model:
// the semi-major axis follows from the mean motion via Kepler's third law,
// and the in-plane phase at epoch is the argument of perigee plus the mean
// anomaly. Eccentricity is discarded.
func (e Entry) CircularElements(c orbit.Constants) (orbit.Elements, float64) {
	nRadS := e.MeanMotionRevDay * 2 * math.Pi / 86400.0
	el := orbit.Elements{
		SemiMajorAxisKm: math.Cbrt(c.MuKm3S2 / (nRadS * nRadS)),
		InclinationDeg:  e.InclinationDeg,
		RAANDeg:         e.RAANDeg,
	}
	return el, orbit.NormalizeLonDeg(e.ArgPerigeeDeg + e.MeanAnomalyDeg)
}

// Parse reads 3-line NORAD TLE format from r and returns parsed entries.
// Malformed entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Try to find the next valid triplet.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		entry, err := parseEntry(name, line1, line2)
		if err != nil {
			logger.Warn("skipping unparseable TLE entry", "name", name, "error", err)
			i += 3
			continue
		}

		entries = append(entries, entry)
		i += 3
	}

	return entries, nil
}

func parseEntry(name, line1, line2 string) (Entry, error) {
	if len(line1) < 32 {
		return Entry{}, fmt.Errorf("line1 too short: %d chars", len(line1))
	}
	if len(line2) < 63 {
		return Entry{}, fmt.Errorf("line2 too short: %d chars", len(line2))
	}

	// NORAD id lives in line1 cols 3-7 (0-indexed 2:7).
	noradID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return Entry{}, fmt.Errorf("invalid NORAD id %q", strings.TrimSpace(line1[2:7]))
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return Entry{}, fmt.Errorf("invalid epoch: %w", err)
	}

	// Line 2 field columns per the NORAD format (0-indexed slices).
	incl, err := parseField(line2[8:16], "inclination")
	if err != nil {
		return Entry{}, err
	}
	raan, err := parseField(line2[17:25], "raan")
	if err != nil {
		return Entry{}, err
	}
	// Eccentricity carries an implied leading decimal point.
	ecc, err := parseField("0."+strings.TrimSpace(line2[26:33]), "eccentricity")
	if err != nil {
		return Entry{}, err
	}
	argp, err := parseField(line2[34:42], "argument of perigee")
	if err != nil {
		return Entry{}, err
	}
	meanAnomaly, err := parseField(line2[43:51], "mean anomaly")
	if err != nil {
		return Entry{}, err
	}
	meanMotion, err := parseField(line2[52:63], "mean motion")
	if err != nil {
		return Entry{}, err
	}
	if meanMotion <= 0 {
		return Entry{}, fmt.Errorf("mean motion %g must be positive", meanMotion)
	}

	return Entry{
		NORADID:          noradID,
		Name:             strings.TrimSpace(name),
		Epoch:            epoch,
		Line1:            line1,
		Line2:            line2,
		InclinationDeg:   incl,
		RAANDeg:          raan,
		Eccentricity:     ecc,
		ArgPerigeeDeg:    argp,
		MeanAnomalyDeg:   meanAnomaly,
		MeanMotionRevDay: meanMotion,
	}, nil
}

func parseField(s, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, strings.TrimSpace(s))
	}
	return v, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
