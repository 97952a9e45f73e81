package coupon

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

const (
	// codeCharset is the alphabet for generated code suffixes.
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxAttemptsPerCode bounds collision retries for a single slot. A slot
	// that cannot find a free code within the bound is skipped and reported,
	// rather than looping forever as the code space fills up.
	maxAttemptsPerCode = 10

	// minSuffixLength keeps the generated code space large enough that
	// collisions stay rare.
	minSuffixLength = 4
)

// GenerateParams configures a bulk generation run. Every generated coupon
// shares the Template's discount rules; only the code differs.
type GenerateParams struct {
	Template   Coupon
	Quantity   int
	Prefix     string
	CodeLength int

	// Known optionally pre-seeds the duplicate screen with codes that already
	// exist elsewhere (e.g. loaded from a prior export), avoiding a round
	// trip to the store for codes that are certain to collide.
	Known *bloom.BloomFilter
}

// GenerateResult reports what a bulk run produced. Generated may be less than
// the requested quantity when slots exhausted their collision retries.
type GenerateResult struct {
	Generated int
	Skipped   int
	Coupons   []*Coupon
}

// Generator mints batches of coupons with unique random codes.
type Generator struct {
	repo Repository
	rand io.Reader
}

// NewGenerator creates a Generator backed by the given Repository.
func NewGenerator(repo Repository) *Generator {
	return &Generator{repo: repo, rand: rand.Reader}
}

// Generate creates p.Quantity coupons from the template, each with a code of
// p.Prefix plus a random [A-Z0-9] suffix of p.CodeLength characters.
//
// A bloom filter screens candidates against codes already minted in this
// batch (and p.Known, when set) before touching the store; the store's
// unique constraint is the final arbiter, and a duplicate there retries the
// same slot with a fresh suffix, up to maxAttemptsPerCode.
func (g *Generator) Generate(ctx context.Context, p GenerateParams) (*GenerateResult, error) {
	if p.Quantity <= 0 {
		return nil, &DefinitionError{Field: "quantity", Msg: "must be positive"}
	}
	if p.CodeLength < minSuffixLength {
		return nil, &DefinitionError{Field: "codeLength", Msg: "too short for a unique code space"}
	}

	// Validate the shared template once, with a placeholder code; per-coupon
	// codes are generated below.
	probe := p.Template
	probe.Code = p.Prefix + "PROBE"
	if err := validateDefinition(&probe); err != nil {
		return nil, err
	}

	minted := bloom.NewWithEstimates(uint(p.Quantity)*2, 0.001)

	res := &GenerateResult{Coupons: make([]*Coupon, 0, p.Quantity)}
	for range p.Quantity {
		c, err := g.mintOne(ctx, p, minted)
		if err != nil {
			return res, err
		}
		if c == nil {
			res.Skipped++
			continue
		}
		res.Coupons = append(res.Coupons, c)
		res.Generated++
	}
	return res, nil
}

// mintOne attempts a single slot. Returns (nil, nil) when the slot exhausted
// its retries without finding a free code.
func (g *Generator) mintOne(ctx context.Context, p GenerateParams, minted *bloom.BloomFilter) (*Coupon, error) {
	for range maxAttemptsPerCode {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		suffix, err := g.randomSuffix(p.CodeLength)
		if err != nil {
			return nil, errors.Wrap(err, "generate code suffix")
		}
		code := normalizeCode(p.Prefix + suffix)

		if minted.TestString(code) {
			continue
		}
		if p.Known != nil && p.Known.TestString(code) {
			minted.AddString(code)
			continue
		}

		c := p.Template
		c.ID = uuid.New().String()
		c.Code = code
		c.TimesUsed = 0

		if err := g.repo.Create(ctx, &c); err != nil {
			if errors.Is(err, ErrDuplicateCode) {
				minted.AddString(code)
				continue
			}
			return nil, errors.Wrapf(err, "create coupon %s", code)
		}

		minted.AddString(code)
		return &c, nil
	}
	return nil, nil
}

func (g *Generator) randomSuffix(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}
