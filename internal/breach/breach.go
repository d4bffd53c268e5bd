// Package breach tells whether a password is common or appears in a known
// data breach.
//
// Breach lookups use the Pwned Passwords range API: only the first five hex
// characters of the SHA-1 hash leave the machine. Answers are cached by the
// vault so a password is looked up at most once per cache lifetime.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/logging"
)

const (
	DefaultBaseURL = "https://api.pwnedpasswords.com"
	DefaultTimeout = 10 * time.Second
	prefixLen      = 5
)

var ErrLookup = errors.New("breach lookup failed")

// Problem found with a password.
type Problem int

const (
	ProblemNone Problem = iota
	ProblemCommon
	ProblemExposed
)

func (p Problem) String() string {
	switch p {
	case ProblemCommon:
		return "Common"
	case ProblemExposed:
		return "Exposed"
	}
	return "None"
}

//go:embed common.txt
var commonList string

var common = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, line := range strings.Split(commonList, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			m[line] = struct{}{}
		}
	}
	return m
}()

// IsCommon reports whether password is on the built-in list of most used
// passwords. The comparison ignores case.
func IsCommon(password string) bool {
	_, ok := common[strings.ToLower(password)]
	return ok
}

// Hash returns the upper-case hex SHA-1 of password.
func Hash(password []byte) string {
	sum := sha1.Sum(password)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Cache stores lookup results by hash.
type Cache interface {
	BreachStatus(hash string) (exposed, found bool, err error)
	AddBreachStatus(hash string, exposed bool) error
}

type Options struct {
	BaseURL string
	Client  *http.Client
	Logger  logging.Logger
}

// Checker answers password problems. It is safe for concurrent use; range
// lookups run one at a time.
type Checker struct {
	cache   Cache
	client  *http.Client
	baseURL string
	log     logging.Logger
	permit  *semaphore.Weighted
}

func NewChecker(cache Cache, opts Options) *Checker {
	c := &Checker{
		cache:   cache,
		client:  opts.Client,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		log:     opts.Logger,
		permit:  semaphore.NewWeighted(1),
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultTimeout}
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	return c
}

// Check classifies password. A common password is reported without any
// network access.
func (c *Checker) Check(ctx context.Context, password *crypto.Secret) (Problem, error) {
	if IsCommon(password.Expose()) {
		return ProblemCommon, nil
	}
	hash := Hash(password.Bytes())

	if err := c.permit.Acquire(ctx, 1); err != nil {
		return ProblemNone, err
	}
	defer c.permit.Release(1)

	exposed, found, err := c.cache.BreachStatus(hash)
	if err != nil {
		return ProblemNone, err
	}
	if !found {
		exposed, err = c.lookup(ctx, hash)
		if err != nil {
			return ProblemNone, err
		}
		if err := c.cache.AddBreachStatus(hash, exposed); err != nil {
			return ProblemNone, err
		}
	}

	if exposed {
		return ProblemExposed, nil
	}
	return ProblemNone, nil
}

func (c *Checker) lookup(ctx context.Context, hash string) (bool, error) {
	prefix, suffix := hash[:prefixLen], hash[prefixLen:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", "passvault")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("%w: status %d", ErrLookup, resp.StatusCode)
	}

	exposed, err := scanRange(resp.Body, suffix)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	c.log.Debug(ctx, "range lookup finished", "duration", time.Since(start))
	return exposed, nil
}

// scanRange looks for suffix in a "SUFFIX:COUNT" listing. Padding rows have
// a count of zero.
func scanRange(r io.Reader, suffix string) (bool, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s, count, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || !strings.EqualFold(s, suffix) {
			continue
		}
		n, err := strconv.Atoi(count)
		if err != nil {
			return false, fmt.Errorf("malformed count %q", count)
		}
		return n > 0, nil
	}
	return false, sc.Err()
}
