// Command coupon-ingest loads partner coupon feeds into the coupons table.
//
// Each feed is a gzip-compressed CSV with rows of
// code,type,value[,minSpend,minItems,maxDiscount]. A code is imported only
// when at least -min-feeds feeds list it. Feeds are far larger than memory,
// so the first pass builds one bloom filter per feed and the second pass
// keeps only codes that some other feed's filter recognises.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
	maxFeeds      = bits.UintSize
)

type options struct {
	feeds       []string
	minFeeds    int
	capacity    uint
	batchSize   int
	writers     int
	databaseURL string
}

func main() {
	var (
		opts    options
		pattern string
	)

	flag.StringVar(&pattern, "feeds", "data/*.csv.gz", "glob matching the gzip CSV feeds")
	flag.IntVar(&opts.minFeeds, "min-feeds", 2, "number of feeds that must list a code")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected codes per feed, sizes the bloom filters")
	flag.IntVar(&opts.batchSize, "batch-size", 500, "coupons per database batch")
	flag.IntVar(&opts.writers, "writers", 4, "concurrent database writers")
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	feeds, err := filepath.Glob(pattern)
	if err != nil {
		slog.Error("bad feed pattern", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sort.Strings(feeds)
	opts.feeds = feeds

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, opts options) error {
	switch {
	case len(opts.feeds) == 0:
		return errors.New("no feeds matched")
	case len(opts.feeds) > maxFeeds:
		return errors.Errorf("at most %d feeds are supported, got %d", maxFeeds, len(opts.feeds))
	case opts.minFeeds < 1 || opts.minFeeds > len(opts.feeds):
		return errors.Errorf("min-feeds must be between 1 and %d", len(opts.feeds))
	}

	rules, err := collect(ctx, opts.feeds, opts.minFeeds, opts.capacity)
	if err != nil {
		return err
	}
	slog.Info("coupons accepted", slog.Int("count", len(rules)))
	if len(rules) == 0 {
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeCoupons(ctx, postgres.NewCouponRepository(pool), rules, opts.batchSize, opts.writers); err != nil {
		return errors.Wrap(err, "write coupons to database")
	}
	return nil
}

// collect runs both passes and returns the accepted rules sorted by code.
func collect(ctx context.Context, feeds []string, minFeeds int, capacity uint) ([]coupon.Rule, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(feeds)))
	filters, err := buildBloomFilters(ctx, feeds, capacity)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes listed by several feeds")
	rules, err := findAccepted(ctx, feeds, filters, minFeeds)
	if err != nil {
		return nil, errors.Wrap(err, "find accepted codes")
	}
	return rules, nil
}

// row is one parsed feed line.
type row struct {
	rule coupon.Rule
}

// parseRow parses code,type,value[,minSpend,minItems,maxDiscount].
// Headers, comments and blank lines report ok=false with a nil error.
func parseRow(line string) (_ row, ok bool, _ error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return row{}, false, nil
	}
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if strings.EqualFold(fields[0], "code") {
		return row{}, false, nil
	}
	if len(fields) < 3 {
		return row{}, false, errors.Errorf("want at least 3 fields, got %d", len(fields))
	}

	code := coupon.NormalizeCode(fields[0])
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return row{}, false, errors.Errorf("code %q: length out of range", fields[0])
	}
	t := coupon.DiscountType(strings.ToLower(fields[1]))
	if !t.Valid() {
		return row{}, false, errors.Errorf("code %s: unknown discount type %q", code, fields[1])
	}
	value, err := decimal.NewFromString(fields[2])
	if err != nil || value.IsNegative() {
		return row{}, false, errors.Errorf("code %s: bad value %q", code, fields[2])
	}

	rule := coupon.Rule{Code: code, DiscountType: t, Value: value}
	if len(fields) > 3 && fields[3] != "" {
		if rule.MinSpend, err = decimal.NewFromString(fields[3]); err != nil {
			return row{}, false, errors.Wrapf(err, "code %s: min spend", code)
		}
	}
	if len(fields) > 4 && fields[4] != "" {
		if rule.MinItems, err = strconv.Atoi(fields[4]); err != nil {
			return row{}, false, errors.Wrapf(err, "code %s: min items", code)
		}
	}
	if len(fields) > 5 && fields[5] != "" {
		if rule.MaxDiscount, err = decimal.NewFromString(fields[5]); err != nil {
			return row{}, false, errors.Wrapf(err, "code %s: max discount", code)
		}
	}
	return row{rule: rule}, true, nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, feeds []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			if err := streamFeed(ctx, path, func(r row) {
				filter.AddString(r.rule.Code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("feed", path), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.String("feed", path), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// candidate is a code seen in pass 2 with the feeds that listed it.
type candidate struct {
	rule  coupon.Rule
	feeds uint
}

// findAccepted re-streams each feed and keeps codes that at least
// minFeeds-1 other filters recognise. Bloom false positives are removed by
// counting the feeds that actually listed each surviving code.
func findAccepted(ctx context.Context, feeds []string, filters []*bloom.BloomFilter, minFeeds int) ([]coupon.Rule, error) {
	results := make([]map[string]candidate, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			found := make(map[string]candidate)
			bit := uint(1) << uint(i)
			if err := streamFeed(ctx, path, func(r row) {
				others := 0
				for j, f := range filters {
					if j != i && f.TestString(r.rule.Code) {
						others++
					}
				}
				if others+1 < minFeeds {
					return
				}
				if _, ok := found[r.rule.Code]; !ok {
					found[r.rule.Code] = candidate{rule: r.rule, feeds: bit}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			slog.Info("pass 2 complete", slog.String("feed", path), slog.Int("candidates", len(found)))
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The lowest-indexed feed that lists a code supplies its rule.
	merged := make(map[string]candidate)
	for _, found := range results {
		for code, c := range found {
			if m, ok := merged[code]; ok {
				m.feeds |= c.feeds
				merged[code] = m
				continue
			}
			merged[code] = c
		}
	}

	var accepted []coupon.Rule
	for _, c := range merged {
		if bits.OnesCount(c.feeds) >= minFeeds {
			accepted = append(accepted, c.rule)
		}
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Code < accepted[j].Code })
	return accepted, nil
}

// streamFeed opens a gzip-compressed feed and calls fn for each valid row.
// Malformed rows are logged and skipped.
func streamFeed(ctx context.Context, path string, fn func(r row)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		r, ok, err := parseRow(scanner.Text())
		if err != nil {
			slog.Warn("skipping row", slog.String("feed", path), slog.Int("line", line), slog.String("error", err.Error()))
			continue
		}
		if ok {
			fn(r)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// batchWriter is implemented by *postgres.CouponRepository.
type batchWriter interface {
	UpsertBatch(ctx context.Context, rules []coupon.Rule) error
}

// writeCoupons upserts rules in batches using up to writers connections.
func writeCoupons(ctx context.Context, repo batchWriter, rules []coupon.Rule, batchSize, writers int) error {
	slog.Info("writing coupons to database", slog.Int("count", len(rules)))
	batchSize = max(batchSize, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(writers, 1))
	for start := 0; start < len(rules); start += batchSize {
		batch := rules[start:min(start+batchSize, len(rules))]
		g.Go(func() error {
			if err := repo.UpsertBatch(ctx, batch); err != nil {
				return errors.Wrapf(err, "upsert batch starting at %s", batch[0].Code)
			}
			slog.Info("write progress", slog.Int("written", start+len(batch)), slog.Int("total", len(rules)))
			return nil
		})
	}
	return g.Wait()
}
