package usecase

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"retrieval/internal/domain"
)

var sliceNames = [3]string{"train", "validation", "test"}

// PartitionOptions tune the partitioner; zero values take the defaults.
type PartitionOptions struct {
	Seed          uint64
	SampleRows    int
	CheckInterval int
	Logger        *slog.Logger
}

// Partitioner splits a table into train/validation/test CSV files that keep
// the target proportions while each file stays under a byte budget.
type Partitioner struct {
	outputDir     string
	seed          uint64
	sampleRows    int
	checkInterval int
	logger        *slog.Logger
}

func NewPartitioner(outputDir string, opts PartitionOptions) *Partitioner {
	p := &Partitioner{
		outputDir:     outputDir,
		seed:          opts.Seed,
		sampleRows:    opts.SampleRows,
		checkInterval: opts.CheckInterval,
		logger:        opts.Logger,
	}
	if p.sampleRows <= 0 {
		p.sampleRows = 200
	}
	if p.checkInterval <= 0 {
		p.checkInterval = 100
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// ValidateFractions requires non-negative fractions, a positive train share
// and a sum of one.
func ValidateFractions(f domain.Fractions) error {
	if f.Train <= 0 || f.Validation < 0 || f.Test < 0 {
		return fmt.Errorf("%w: %+v", domain.ErrInvalidFractions, f)
	}
	if sum := f.Train + f.Validation + f.Test; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: fractions sum to %g", domain.ErrInvalidFractions, sum)
	}
	return nil
}

// Partition shuffles table, plans per-slice row counts from the budget and
// writes train.csv, validation.csv and test.csv. A slice whose Written is
// below Planned hit the budget while writing.
func (p *Partitioner) Partition(table domain.Table, fractions domain.Fractions, budget int64) (*domain.PartitionResult, error) {
	if err := ValidateFractions(fractions); err != nil {
		return nil, err
	}
	if budget <= 0 {
		return nil, fmt.Errorf("byte budget must be positive, got %d", budget)
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	rows := slices.Clone(table.Rows)
	rng := rand.New(rand.NewPCG(p.seed, p.seed))
	rng.Shuffle(len(rows), func(i, j int) {
		rows[i], rows[j] = rows[j], rows[i]
	})

	slicesRows := SplitRows(rows, fractions)
	fracs := [3]float64{fractions.Train, fractions.Validation, fractions.Test}

	var avgs [3]float64
	var sizes [3]int
	for i, s := range slicesRows {
		sizes[i] = len(s)
		avg, err := estimateAvgRowBytes(s, p.sampleRows)
		if err != nil {
			return nil, err
		}
		avgs[i] = avg
	}

	counts, k := PlanCounts(sizes, avgs, fracs, budget)

	result := &domain.PartitionResult{SourceRows: len(rows), Scale: k}
	for i, name := range sliceNames {
		path := filepath.Join(p.outputDir, name+".csv")
		written, size, err := p.writeLimited(path, table.Header, slicesRows[i][:counts[i]], budget)
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}

		slice := domain.SliceResult{
			Name:        name,
			Path:        path,
			Available:   sizes[i],
			Planned:     counts[i],
			Written:     written,
			Bytes:       size,
			AvgRowBytes: avgs[i],
		}
		if slice.Partial() {
			p.logger.Warn("byte budget reached before planned rows were written",
				"slice", name, "planned", slice.Planned, "written", slice.Written, "budget", budget)
		}
		result.Slices = append(result.Slices, slice)
	}

	p.logger.Info("partition written", "rows", len(rows), "k", k, "dir", p.outputDir)
	return result, nil
}

// SplitRows cuts rows into contiguous train, validation and test ranges.
// Train takes floor(f_train*n); validation takes the floor of its share of
// the remainder and test keeps the rest.
func SplitRows(rows [][]string, f domain.Fractions) [3][][]string {
	n := len(rows)
	train := int(f.Train * float64(n))
	remaining := n - train

	val := 0
	if rest := f.Validation + f.Test; rest > 0 {
		val = int(float64(remaining) * f.Validation / rest)
	}

	return [3][][]string{
		rows[:train],
		rows[train : train+val],
		rows[train+val:],
	}
}

// PlanCounts picks the largest scale k such that fraction_i*k fits both the
// rows available and the rows the budget allows in every slice, then turns
// k into per-slice counts. It returns the counts and k.
func PlanCounts(sizes [3]int, avgs [3]float64, fracs [3]float64, budget int64) ([3]int, int) {
	limit := math.Inf(1)
	for i := range fracs {
		if fracs[i] <= 0 {
			continue
		}
		if avgs[i] > 0 {
			if maxRows := math.Floor(float64(budget) / avgs[i]); maxRows > 0 {
				limit = math.Min(limit, maxRows/fracs[i])
			}
		}
		if sizes[i] > 0 {
			limit = math.Min(limit, float64(sizes[i])/fracs[i])
		}
	}

	k := 0
	if !math.IsInf(limit, 1) {
		k = int(math.Floor(limit))
	}

	var counts [3]int
	counts[0] = int(math.RoundToEven(fracs[0] * float64(k)))
	counts[1] = int(math.RoundToEven(fracs[1] * float64(k)))
	counts[2] = k - counts[0] - counts[1]

	for i := range counts {
		counts[i] = max(0, min(counts[i], sizes[i]))
		if counts[i] == 0 && sizes[i] > 0 {
			counts[i] = 1
		}
	}
	return counts, k
}

// estimateAvgRowBytes serializes up to sample rows with CSV quoting and
// returns the mean bytes per row. The header is not counted.
func estimateAvgRowBytes(rows [][]string, sample int) (float64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	rows = rows[:min(sample, len(rows))]

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return 0, err
	}
	return float64(buf.Len()) / float64(len(rows)), nil
}

// writeLimited writes header and rows to path, stopping before a row that
// would push the file past budget. The first data row is always written.
func (p *Partitioner) writeLimited(path string, header []string, rows [][]string, budget int64) (int, int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	out := bufio.NewWriter(f)
	var scratch bytes.Buffer
	enc := csv.NewWriter(&scratch)
	encode := func(record []string) ([]byte, error) {
		scratch.Reset()
		if err := enc.Write(record); err != nil {
			return nil, err
		}
		enc.Flush()
		return scratch.Bytes(), enc.Error()
	}

	line, err := encode(header)
	if err != nil {
		return 0, 0, err
	}
	if _, err := out.Write(line); err != nil {
		return 0, 0, err
	}
	size := int64(len(line))

	written := 0
	for _, row := range rows {
		line, err := encode(row)
		if err != nil {
			return written, size, err
		}
		if written > 0 && size+int64(len(line)) > budget {
			break
		}
		if _, err := out.Write(line); err != nil {
			return written, size, err
		}
		size += int64(len(line))
		written++

		if written%p.checkInterval == 0 {
			if err := out.Flush(); err != nil {
				return written, size, err
			}
		}
	}

	if err := out.Flush(); err != nil {
		return written, size, err
	}
	if err := f.Sync(); err != nil {
		return written, size, err
	}
	return written, size, f.Close()
}
