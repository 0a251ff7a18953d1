package backtesting

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/core"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/exchange"
	"github.com/MLOpsArtisan/TradePulse-ver1.2/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

const (
	batchSize = 500
)

// CSV header names, in the column order the CSV feed reads by default
var csvHeaders = []string{"time", "open", "close", "low", "high", "volume"}

// BarSource serves historical bars for a time range
type BarSource interface {
	BarsByPeriod(ctx context.Context, symbol string, granularity core.Granularity, start, end time.Time) (core.Window, error)
	SymbolInfo(ctx context.Context, symbol string) (core.SymbolInfo, error)
}

// Downloader saves historical bars to CSV files the replay can read
type Downloader struct {
	source   BarSource
	log      logger.Logger
	progress io.Writer
}

// DownloaderOption configures a Downloader
type DownloaderOption func(*Downloader)

// WithDownloadLogger sets the downloader logger
func WithDownloadLogger(log logger.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.log = log
	}
}

// WithProgressWriter redirects the progress bar; nil hides it
func WithProgressWriter(w io.Writer) DownloaderOption {
	return func(d *Downloader) {
		d.progress = w
	}
}

// NewDownloader creates a new downloader over the provided source
func NewDownloader(source BarSource, options ...DownloaderOption) Downloader {
	d := Downloader{
		source:   source,
		log:      logger.Nop(),
		progress: os.Stderr,
	}
	for _, option := range options {
		option(&d)
	}
	return d
}

// Parameters defines the time range for data download
type Parameters struct {
	Start time.Time
	End   time.Time
}

// Option is a function type for configuring download parameters
type Option func(*Parameters)

// WithInterval sets specific start and end times for the download
func WithInterval(start, end time.Time) Option {
	return func(parameters *Parameters) {
		parameters.Start = start
		parameters.End = end
	}
}

// WithDays sets the download period to a specific number of days from now
func WithDays(days int) Option {
	return func(parameters *Parameters) {
		parameters.Start = time.Now().AddDate(0, 0, -days)
		parameters.End = time.Now()
	}
}

// Download fetches bars from the source and saves them to a CSV file
func (d Downloader) Download(ctx context.Context, symbol, timeframe, outputPath string, options ...Option) error {
	granularity, err := exchange.ParseTimeframe(timeframe)
	if err != nil {
		return err
	}
	interval := granularity.Duration()
	if interval == 0 {
		return fmt.Errorf("%w: cannot download %s data", exchange.ErrInvalidTimeframe, granularity)
	}

	parameters := initializeParameters()
	for _, option := range options {
		option(parameters)
	}
	normalizeTimeParameters(parameters)

	info, err := d.source.SymbolInfo(ctx, symbol)
	if err != nil {
		return err
	}

	recordFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer recordFile.Close()

	barCount := int(parameters.End.Sub(parameters.Start)/interval) + 1
	d.log.Infof("Downloading %d bars of %s for %s", barCount, granularity, symbol)

	writer := csv.NewWriter(recordFile)
	if err := writer.Write(csvHeaders); err != nil {
		return err
	}

	progressBar := d.newProgressBar(barCount)
	missing, err := d.downloadBatches(ctx, symbol, granularity, parameters, info.Digits, writer, progressBar)
	if err != nil {
		return err
	}

	if err = progressBar.Close(); err != nil {
		d.log.Warnf("Failed to close progress bar: %s", err.Error())
	}

	if missing > 0 {
		d.log.Warnf("%d missing bars", missing)
	}

	writer.Flush()
	d.log.Info("Done!")
	return writer.Error()
}

func (d Downloader) newProgressBar(total int) *progressbar.ProgressBar {
	if d.progress == nil {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions64(int64(total),
		progressbar.OptionSetWriter(d.progress),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
	)
}

// initializeParameters creates default parameters for the last month
func initializeParameters() *Parameters {
	now := time.Now()
	return &Parameters{
		Start: now.AddDate(0, -1, 0),
		End:   now,
	}
}

// normalizeTimeParameters snaps the start to midnight UTC and keeps the end
// out of the future
func normalizeTimeParameters(parameters *Parameters) {
	start := parameters.Start.UTC()
	parameters.Start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	now := time.Now()
	if now.Sub(parameters.End) > 0 {
		end := parameters.End.UTC()
		parameters.End = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parameters.End = now
	}
}

// downloadBatches downloads bars in batches and writes them to CSV
func (d Downloader) downloadBatches(
	ctx context.Context,
	symbol string,
	granularity core.Granularity,
	parameters *Parameters,
	precision int,
	writer *csv.Writer,
	progressBar *progressbar.ProgressBar,
) (int, error) {
	missing := 0
	interval := granularity.Duration()

	for batchStart := parameters.Start; batchStart.Before(parameters.End); batchStart = batchStart.Add(interval * batchSize) {
		batchEnd := calculateBatchEnd(batchStart, interval, parameters.End)
		isLastBatch := batchEnd.Equal(parameters.End)

		bars, err := d.source.BarsByPeriod(ctx, symbol, granularity, batchStart, batchEnd)
		if err != nil {
			return missing, err
		}

		if err := writeBars(writer, bars, precision); err != nil {
			return missing, err
		}

		if !isLastBatch && len(bars) < batchSize {
			missing += batchSize - len(bars)
		}

		if err := progressBar.Add(len(bars)); err != nil {
			d.log.Warnf("Failed to update progress bar: %s", err.Error())
		}
	}

	return missing, nil
}

// calculateBatchEnd determines the end time for a batch
func calculateBatchEnd(batchStart time.Time, interval time.Duration, totalEnd time.Time) time.Time {
	potentialEnd := batchStart.Add(interval * batchSize)

	// one second short of the next batch start so bars are not fetched twice
	if potentialEnd.Before(totalEnd) {
		return potentialEnd.Add(-1 * time.Second)
	}

	return totalEnd
}

func writeBars(writer *csv.Writer, bars core.Window, precision int) error {
	for _, bar := range bars {
		if err := writer.Write(bar.ToSlice(precision)); err != nil {
			return err
		}
	}
	return nil
}
