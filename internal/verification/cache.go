package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/transport"
)

// EntryLister lists cached datasets. *transport.CachedTransport implements it.
type EntryLister interface {
	Entries() ([]transport.Entry, error)
}

// CacheVerifier checks cached files against their recorded size and hash,
// then decodes them to catch files that were written whole but are still
// unreadable.
type CacheVerifier struct {
	lister EntryLister
	reader *reader.Reader
}

// NewCacheVerifier creates a CacheVerifier. A nil reader skips decoding.
func NewCacheVerifier(lister EntryLister, r *reader.Reader) *CacheVerifier {
	return &CacheVerifier{lister: lister, reader: r}
}

// VerifyAll verifies every cached dataset.
func (v *CacheVerifier) VerifyAll(ctx context.Context) (*Report, error) {
	entries, err := v.lister.Entries()
	if err != nil {
		return nil, err
	}
	report := &Report{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := v.VerifyEntry(e)
		if err != nil {
			return report, err
		}
		report.add(*res)
	}
	return report, nil
}

// VerifyEntry verifies one cached file. Mismatches are reported as
// divergences; only unexpected I/O failures are returned as errors.
func (v *CacheVerifier) VerifyEntry(e transport.Entry) (*Result, error) {
	res := &Result{Subject: filepath.Base(e.Path)}

	size, sum, err := hashFile(e.Path)
	if errors.Is(err, os.ErrNotExist) {
		res.Divergences = append(res.Divergences, FieldDivergence{Field: "File", Expected: "present", Actual: "missing"})
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if e.Kind == "" {
		res.Divergences = append(res.Divergences, FieldDivergence{Field: "Metadata", Expected: "present", Actual: "missing"})
	}
	if e.Size != 0 && e.Size != size {
		res.Divergences = append(res.Divergences, FieldDivergence{Field: "Size", Expected: e.Size, Actual: size})
	}
	if e.SHA256 != "" && e.SHA256 != sum {
		res.Divergences = append(res.Divergences, FieldDivergence{Field: "SHA256", Expected: e.SHA256, Actual: sum})
	}

	if v.reader != nil && e.Kind != "" {
		if err := v.decode(e); err != nil {
			if !errors.Is(err, domain.ErrCorruptDataset) {
				return nil, err
			}
			res.Divergences = append(res.Divergences, FieldDivergence{Field: "Decode", Expected: "readable", Actual: err.Error()})
		}
	}
	return res, nil
}

func (v *CacheVerifier) decode(e transport.Entry) error {
	var err error
	switch e.Kind {
	case domain.DatasetExchangeUniverse:
		_, err = v.reader.ReadExchanges(e.Path)
	case domain.DatasetPairUniverse:
		_, err = v.reader.ReadPairs(e.Path, reader.PairFilter{})
	case domain.DatasetLiquidity:
		_, err = v.reader.ReadLiquidity(e.Path, reader.Filter{})
	default:
		_, err = v.reader.ReadCandles(e.Path, reader.Filter{})
	}
	return err
}

func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash %s: %w", path, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
