// Package fleet runs one scan loop per builder and watches for builders
// joining the fleet while the daemon is up.
package fleet

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/behaviour"
	"github.com/zulandar/foundry/internal/clock"
	"github.com/zulandar/foundry/internal/registry"
	"github.com/zulandar/foundry/internal/scanner"
	"github.com/zulandar/foundry/internal/worker"
)

// ClientFactory builds the RPC client for a builder. The default dials the
// builder's recorded URL over HTTP; tests substitute fakes.
type ClientFactory func(name, url string) worker.Client

// Config holds the supervisor's timing policy.
type Config struct {
	// ScanInterval is the pause between one builder scan finishing and the
	// next one starting. Loops re-arm after each scan, so a slow scan does
	// not cause catch-up bursts.
	ScanInterval time.Duration
	// NewBuilderInterval is how often the registry is checked for builders
	// that joined since startup.
	NewBuilderInterval time.Duration
	// Scanner is the per-scanner policy.
	Scanner scanner.Config
}

// Opts wires a Supervisor. DB, Factory, Resolver and Clock are required;
// Clients defaults to HTTP, Notifier to none, Out to discard.
type Opts struct {
	DB       *gorm.DB
	Factory  registry.Factory
	Resolver *behaviour.Resolver
	Clock    clock.Clock
	Config   Config
	Clients  ClientFactory
	Notifier scanner.Notifier
	Out      io.Writer
}

// Supervisor owns the per-builder scan goroutines. Builders present at
// startup and builders detected later are treated identically: each gets
// its own loop, started exactly once.
type Supervisor struct {
	db       *gorm.DB
	factory  registry.Factory
	resolver *behaviour.Resolver
	clock    clock.Clock
	cfg      Config
	clients  ClientFactory
	notifier scanner.Notifier
	out      io.Writer

	mu      sync.Mutex
	wg      sync.WaitGroup
	started map[string]bool
}

// New creates a Supervisor.
func New(opts Opts) *Supervisor {
	if opts.Clients == nil {
		opts.Clients = func(_, url string) worker.Client { return worker.NewHTTPClient(url) }
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Supervisor{
		db:       opts.DB,
		factory:  opts.Factory,
		resolver: opts.Resolver,
		clock:    opts.Clock,
		cfg:      opts.Config,
		clients:  opts.Clients,
		notifier: opts.Notifier,
		out:      opts.Out,
		started:  map[string]bool{},
	}
}

// Run starts a scan loop for every known builder, then keeps watching for
// new ones until ctx is cancelled. It returns once every loop has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	detector := NewDetector(s.factory)
	if err := s.admitNew(ctx, detector); err != nil {
		return fmt.Errorf("fleet: initial builder scan: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-s.clock.After(s.cfg.NewBuilderInterval):
		}
		// A broken registry here only delays detection of new builders;
		// the running loops are unaffected.
		if err := s.admitNew(ctx, detector); err != nil {
			log.Printf("fleet: builder detection: %v", err)
		}
	}
}

// admitNew starts loops for builders the detector has not reported before.
func (s *Supervisor) admitNew(ctx context.Context, d *Detector) error {
	fresh, err := d.Check()
	if err != nil {
		return err
	}
	for _, name := range fresh {
		s.startLoop(ctx, name)
	}
	return nil
}

// startLoop launches the scan goroutine for one builder, once.
func (s *Supervisor) startLoop(ctx context.Context, name string) {
	s.mu.Lock()
	if s.started[name] {
		s.mu.Unlock()
		return
	}
	s.started[name] = true
	s.mu.Unlock()

	v, err := s.factory.Vitals(name)
	if err != nil {
		log.Printf("fleet: %v", err)
		return
	}
	sc := scanner.New(name, s.db, s.factory, s.clients(name, v.URL), s.clock, s.resolver, s.cfg.Scanner, s.notifier, s.out)
	fmt.Fprintf(s.out, "Watching builder %s (%s)\n", name, v.URL)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, name, sc)
	}()
}

// refreshLoop advances the shared registry snapshot once per scan
// interval. Scanners skip cycles whose generation they have already acted
// on, so the fleet reads the builder table once per interval rather than
// once per builder.
func (s *Supervisor) refreshLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.ScanInterval):
		}
		if err := s.factory.Update(); err != nil {
			log.Printf("fleet: registry refresh: %v", err)
		}
	}
}

// loop scans one builder until ctx is cancelled. The interval re-arms
// after each scan completes, so scan duration never compounds.
func (s *Supervisor) loop(ctx context.Context, name string, sc *scanner.Scanner) {
	for {
		s.scanOnce(ctx, name, sc)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.ScanInterval):
		}
	}
}

// scanOnce runs a single scan, containing panics and logging errors so one
// misbehaving builder never takes the loop (or its siblings) down.
func (s *Supervisor) scanOnce(ctx context.Context, name string, sc *scanner.Scanner) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("fleet: scan of %s panicked: %v", name, r)
		}
	}()
	if err := sc.Scan(ctx); err != nil {
		if scanner.IsConsistency(err) {
			log.Printf("fleet: %v", err)
			return
		}
		log.Printf("fleet: scan of %s: %v", name, err)
	}
}
