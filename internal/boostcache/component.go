package boostcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
)

// Region names. Each is also the request parameter enabling its component.
const (
	BoostCache = "boost.cache"
	BQCache    = "bq.cache"
)

// Component replaces all values of one request parameter with a single
// reference to a cached function.
type Component struct {
	param   string
	region  *Region
	compile CompileFunc
	// format renders the replacement for a key.
	format func(region, key string) string
}

// NewBoostComponent caches the multiplicative boost functions. The
// replacement is cached(boost.cache,<key>).
func NewBoostComponent(region *Region, compile CompileFunc) *Component {
	return &Component{
		param:   params.Boost,
		region:  region,
		compile: compile,
		format: func(region, key string) string {
			return fmt.Sprintf("cached(%s,%s)", region, key)
		},
	}
}

// NewBoostQueryComponent caches the boost queries. The replacement is
// {!func}cached(bq.cache,<key>).
func NewBoostQueryComponent(region *Region, compile CompileFunc) *Component {
	return &Component{
		param:   params.BQ,
		region:  region,
		compile: compile,
		format: func(region, key string) string {
			return fmt.Sprintf("{!func}cached(%s,%s)", region, key)
		},
	}
}

// Name is the region name, which is also the enabling parameter.
func (c *Component) Name() string { return c.region.Name() }

// DebugParam holds the original values after a replacement.
func (c *Component) DebugParam() string { return c.param + ".cached" }

// Prepare rewrites req when the component is enabled and the parameter has
// values. It returns a debug message, or "" when nothing was done.
// Expressions that do not compile are left in place.
func (c *Component) Prepare(ctx context.Context, req params.Params, maxDoc int) (string, error) {
	enabled, err := req.Bool(c.Name(), false)
	if err != nil || !enabled {
		return "", err
	}
	exprs := req.GetAll(c.param)
	if len(exprs) == 0 {
		return "", nil
	}
	exprs = append([]string(nil), exprs...)

	key, hit, err := c.region.ComputeOrReuse(exprs, c.compile, maxDoc)
	if err != nil {
		if errors.Is(err, apperrors.ErrCompilation) {
			logger.FromContext(ctx).Warn("boost not cached", "cache", c.Name(), "expressions", exprs, "error", err)
			return fmt.Sprintf("Could not compile %s function %v", c.Name(), exprs), nil
		}
		return "", err
	}

	ref := c.format(c.Name(), FormatKey(key))
	req.Set(c.param, ref)
	req.Set(c.DebugParam(), exprs...)
	if hit {
		return fmt.Sprintf("Cache hit for %s, using %s", c.Name(), ref), nil
	}
	return fmt.Sprintf("Created entry %s in cache %s for %v", FormatKey(key), c.Name(), exprs), nil
}
