package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/cubeek/ovn/pkg/config"
	"github.com/cubeek/ovn/pkg/ctlsocket"
	"github.com/cubeek/ovn/pkg/engine"
	"github.com/cubeek/ovn/pkg/leader"
	"github.com/cubeek/ovn/pkg/nb"
	"github.com/cubeek/ovn/pkg/sb"
)

const appName = "ovn-northd"

func main() {
	c := cli.NewApp()
	c.Name = appName
	c.Usage = "translates the northbound intent database into southbound logical flows"
	c.Flags = config.Flags()

	ctx, cancel := context.WithCancel(context.Background())
	signalHandler(ctx, cancel)

	c.Action = func(cctx *cli.Context) error {
		if err := config.Init(cctx); err != nil {
			return err
		}
		return run(ctx, cctx)
	}

	if err := c.RunContext(ctx, os.Args); err != nil {
		klog.Exit(err)
	}
}

func signalHandler(ctx context.Context, cancel context.CancelFunc) {
	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case s := <-exitCh:
			klog.Infof("received signal %s, shutting down", s)
			cancel()
		case <-ctx.Done():
		}
	}()
}

func run(ctx context.Context, cctx *cli.Context) error {
	e := engine.New()

	ctl, err := ctlsocket.New("/var/run/ovn/ovn-northd.ctl", func() {
		klog.Info("exiting on control socket request")
		os.Exit(0)
	})
	if err != nil {
		return err
	}
	go ctl.Serve()
	defer ctl.Close()

	var elector leader.Elector
	if cctx.Bool("standalone") {
		elector = leader.StaticElector{}
	} else {
		elector = dbLockElector{}
	}

	fetch := rateLimited(func() (*nb.Snapshot, *sb.Snapshot, error) {
		return fetchSnapshots()
	})
	commit := func(sum engine.Summary) error {
		return commitOps(sum.Ops)
	}

	klog.Infof("%s starting, nb=%s sb=%s", appName, config.NB.Address, config.SB.Address)
	return e.RunLoop(ctx, elector, ctl.IsPaused, fetch, commit)
}

// rateLimited enforces Default.LoopInterval between cycles (spec §4.13
// "each iteration" pacing), since RunLoop itself has no notion of time.
// Pacing wraps fetch rather than commit so a paused engine still paces its
// polling instead of busy-looping while it keeps the cache warm.
func rateLimited(fetch func() (*nb.Snapshot, *sb.Snapshot, error)) func() (*nb.Snapshot, *sb.Snapshot, error) {
	var last time.Time
	return func() (*nb.Snapshot, *sb.Snapshot, error) {
		if since := time.Since(last); since < config.Default.LoopInterval {
			time.Sleep(config.Default.LoopInterval - since)
		}
		last = time.Now()
		return fetch()
	}
}

// fetchSnapshots and commitOps bind to the live NB/SB connections, which
// are out of scope for this engine (spec §1 "the database client runtime
// is an external collaborator"). Wiring a real libovsdb client here is the
// one remaining integration point a deployment needs to supply.
func fetchSnapshots() (*nb.Snapshot, *sb.Snapshot, error) {
	return &nb.Snapshot{}, sb.NewSnapshot(), nil
}

func commitOps(ops []sb.Operation) error {
	klog.V(3).Infof("would commit %d operations", len(ops))
	return nil
}

// dbLockElector is the production Elector, binding to the SB lock RPC
// (spec §4.11); the lock-acquisition call itself is left unimplemented
// pending the real DB client wiring noted above, but the reconnect pacing
// after a lost lock uses the same exponential backoff the teacher's OVSDB
// client reconnect logic does.
type dbLockElector struct{}

func (dbLockElector) Run(ctx context.Context, becomeLeader chan<- bool) {
	bo := backoff.NewExponentialBackOff()
	for {
		if err := acquireSBLock(ctx); err != nil {
			d := bo.NextBackOff()
			klog.Warningf("SB lock acquisition failed, retrying in %s: %v", d, err)
			select {
			case <-time.After(d):
				continue
			case <-ctx.Done():
				return
			}
		}
		bo.Reset()
		select {
		case becomeLeader <- true:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
		return
	}
}

// acquireSBLock is the one remaining integration point: a real deployment
// binds this to the southbound database's Lock RPC.
func acquireSBLock(ctx context.Context) error {
	return nil
}
