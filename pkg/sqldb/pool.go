package sqldb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dministrator/flowdb/internal/orm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultConnection is the name an empty connection name resolves to.
const DefaultConnection = "DEFAULT"

// Option configures Create and OpenEngines.
type Option func(*options)

type options struct {
	defaultName string
	log         zerolog.Logger
}

func buildOptions(opts []Option) options {
	o := options{
		defaultName: DefaultConnection,
		log:         log.Logger.With().Str("component", "sqldb").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDefault changes the name that "" resolves to.
func WithDefault(name string) Option {
	return func(o *options) { o.defaultName = name }
}

// WithLogger sets the logger used for session events and aggregate
// failures.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Pool is the set of named connections of one scope. The zero value is
// not usable; build one with Create or Engines.NewPool.
type Pool struct {
	conns       map[string]*Connection
	names       []string
	defaultName string
	log         zerolog.Logger

	mu    sync.Mutex
	bound map[any]string
}

// Create opens one connection per entry of uris (name to connection URI)
// and verifies each is reachable. An empty map yields a nil pool and no
// error, meaning no databases are configured. If any URI fails, the
// connections opened so far are closed and the error names the failing
// connection. The pool owns its handles and closes them on Close.
func Create(ctx context.Context, uris map[string]string, opts ...Option) (*Pool, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	o := buildOptions(opts)
	adapters, err := openAdapters(ctx, uris)
	if err != nil {
		return nil, err
	}
	conns := make(map[string]*Connection, len(adapters))
	for name, a := range adapters {
		conns[name] = newConnection(name, a, true, o.log)
	}
	return newPool(conns, o), nil
}

func newPool(conns map[string]*Connection, o options) *Pool {
	names := make([]string, 0, len(conns))
	for name := range conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Pool{
		conns:       conns,
		names:       names,
		defaultName: o.defaultName,
		log:         o.log,
		bound:       make(map[any]string),
	}
}

// openAdapters opens every URI in name order, closing what was opened on
// the first failure.
func openAdapters(ctx context.Context, uris map[string]string) (map[string]*orm.BunAdapter, error) {
	names := make([]string, 0, len(uris))
	for name := range uris {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("sqldb: empty connection name")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]*orm.BunAdapter, len(names))
	for _, name := range names {
		a, err := orm.Open(ctx, uris[name])
		if err != nil {
			for _, opened := range out {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("connection %q: %w", name, err)
		}
		out[name] = a
	}
	return out, nil
}

// Get returns the named connection; "" selects the default.
func (p *Pool) Get(name string) (*Connection, error) {
	if p == nil {
		return nil, ErrNotConfigured
	}
	if name == "" {
		name = p.defaultName
	}
	c, ok := p.conns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
	}
	return c, nil
}

// Names lists the connection names in sorted order.
func (p *Pool) Names() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.names...)
}

// Default returns the name "" resolves to.
func (p *Pool) Default() string {
	if p == nil {
		return DefaultConnection
	}
	return p.defaultName
}

// Len returns the number of connections.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.conns)
}

// Commit commits the named connections, or all of them when no names are
// given. Every connection is attempted; the first failure is returned and
// the others are logged.
func (p *Pool) Commit(names ...string) error {
	return p.each("commit", names, (*Connection).Commit)
}

// Rollback discards pending work on the named connections, or all.
func (p *Pool) Rollback(names ...string) error {
	return p.each("rollback", names, (*Connection).Rollback)
}

// Close closes the named connections, or all. Closing the whole pool also
// forgets which connection each loaded record came from.
func (p *Pool) Close(names ...string) error {
	err := p.each("close", names, (*Connection).Close)
	if p != nil && len(names) == 0 {
		p.mu.Lock()
		p.bound = make(map[any]string)
		p.mu.Unlock()
	}
	return err
}

func (p *Pool) each(op string, names []string, fn func(*Connection) error) error {
	if p == nil {
		return nil
	}
	targets := p.names
	if len(names) > 0 {
		targets = make([]string, 0, len(names))
		for _, n := range names {
			c, err := p.Get(n)
			if err != nil {
				return err
			}
			targets = append(targets, c.name)
		}
	}

	var first error
	for _, name := range targets {
		if err := fn(p.conns[name]); err != nil {
			p.log.Error().Err(err).Str("connection", name).Msgf("%s failed", op)
			if first == nil {
				first = fmt.Errorf("%s %q: %w", op, name, err)
			}
		}
	}
	return first
}

// bind records that rec was loaded from or added to the named connection.
func (p *Pool) bind(rec any, name string) {
	p.mu.Lock()
	p.bound[rec] = name
	p.mu.Unlock()
}

func (p *Pool) unbind(rec any) {
	p.mu.Lock()
	delete(p.bound, rec)
	p.mu.Unlock()
}

// Owner returns the name of the connection rec belongs to.
func (p *Pool) Owner(rec any) (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.bound[rec]
	return name, ok
}
