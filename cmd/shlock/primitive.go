package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/srediag/shlock/internal/bench"
	"github.com/srediag/shlock/pkg/shlock"
)

// primitiveFlags are shared by the commands that open a primitive.
type primitiveFlags struct {
	dir    string
	kind   string
	count  uint
	remove bool
}

func (p *primitiveFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.dir, "dir", "", "shared memory directory")
	fs.StringVar(&p.kind, "kind", "mutex", "primitive kind: mutex, rwlock or sem")
	fs.UintVar(&p.count, "count", 1, "initial semaphore count, used only on creation")
	fs.BoolVar(&p.remove, "remove", false, "remove the name when the command destroys the primitive")
}

func (p *primitiveFlags) options() []shlock.Option {
	var opts []shlock.Option
	if p.dir != "" {
		opts = append(opts, shlock.WithDir(p.dir))
	}
	if p.remove {
		opts = append(opts, shlock.WithRemoveOnDestroy(true))
	}
	return opts
}

// primitive is the subset of handle methods the CLI needs.
type primitive interface {
	Name() string
	Created() bool
	Close() error
	Destroy() error
}

func (p *primitiveFlags) open(ctx context.Context, name string) (primitive, error) {
	switch p.kind {
	case "mutex":
		return shlock.NewMutex(ctx, name, p.options()...)
	case "rwlock":
		return shlock.NewRWLock(ctx, name, p.options()...)
	case "sem", "semaphore":
		return shlock.NewSemaphore(ctx, name, uint32(p.count), p.options()...)
	}
	return nil, fmt.Errorf("unknown kind %q", p.kind)
}

// locker picks the acquire/release pair for a primitive and mode.
func locker(prim primitive, mode string) (bench.Locker, error) {
	switch l := prim.(type) {
	case *shlock.Mutex:
		return l, nil
	case *shlock.RWLock:
		if mode == "read" {
			return bench.LockerFunc{Acquire: l.RLock, Release: l.Unlock}, nil
		}
		return l, nil
	case *shlock.Semaphore:
		return bench.LockerFunc{Acquire: l.Wait, Release: l.Signal}, nil
	}
	return nil, fmt.Errorf("unsupported primitive %T", prim)
}

func singleName(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", errors.New("expected exactly one name")
	}
	return fs.Arg(0), nil
}

func openCommand(args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	var pf primitiveFlags
	pf.register(fs)
	destroy := fs.Bool("destroy", false, "destroy the primitive after printing its header")
	_ = fs.Parse(args)
	name, err := singleName(fs)
	if err != nil {
		return err
	}
	prim, err := pf.open(context.Background(), name)
	if err != nil {
		return err
	}
	defer prim.Close()
	state := "attached"
	if prim.Created() {
		state = "created"
	}
	fmt.Printf("%s %s\n", state, prim.Name())
	if err := shlock.DebugHeader(os.Stdout, name, pf.options()...); err != nil {
		return err
	}
	if *destroy {
		return prim.Destroy()
	}
	return nil
}

func holdCommand(args []string) error {
	fs := flag.NewFlagSet("hold", flag.ExitOnError)
	var pf primitiveFlags
	pf.register(fs)
	mode := fs.String("mode", "write", "rwlock mode: read or write")
	hold := fs.Duration("for", 5*time.Second, "how long to hold the primitive")
	_ = fs.Parse(args)
	name, err := singleName(fs)
	if err != nil {
		return err
	}
	prim, err := pf.open(context.Background(), name)
	if err != nil {
		return err
	}
	defer prim.Close()
	l, err := locker(prim, *mode)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := l.Lock(); err != nil {
		return err
	}
	fmt.Printf("acquired %s after %v, holding for %v\n", prim.Name(), time.Since(start).Round(time.Microsecond), *hold)
	time.Sleep(*hold)
	if err := l.Unlock(); err != nil {
		return err
	}
	fmt.Printf("released %s\n", prim.Name())
	return nil
}

func inspectCommand(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	var pf primitiveFlags
	pf.register(fs)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New("expected at least one name")
	}
	for _, name := range fs.Args() {
		if err := shlock.DebugHeader(os.Stdout, name, pf.options()...); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func rmCommand(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	var pf primitiveFlags
	pf.register(fs)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New("expected at least one name")
	}
	for _, name := range fs.Args() {
		if err := shlock.Remove(name, pf.options()...); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func benchCommand(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	var pf primitiveFlags
	pf.register(fs)
	mode := fs.String("mode", "write", "rwlock mode: read or write")
	workers := fs.Int("workers", 8, "concurrent workers")
	iterations := fs.Int("iterations", 1000, "acquire/release cycles per worker")
	hold := fs.Duration("hold", 0, "time each worker holds the primitive")
	perSec := fs.Float64("rate", 0, "max acquires per second across workers, 0 for no limit")
	_ = fs.Parse(args)
	name, err := singleName(fs)
	if err != nil {
		return err
	}
	prim, err := pf.open(context.Background(), name)
	if err != nil {
		return err
	}
	defer prim.Close()
	l, err := locker(prim, *mode)
	if err != nil {
		return err
	}
	res, err := bench.Run(context.Background(), l, bench.Config{
		Workers:    *workers,
		Iterations: *iterations,
		Hold:       *hold,
		Rate:       *perSec,
	})
	if err != nil {
		return err
	}
	fmt.Printf("ops:%d errors:%d elapsed:%v max_holders:%d overlaps:%d p50:%v p99:%v max:%v\n",
		res.Ops, res.Errors, res.Elapsed, res.MaxHolders, res.Overlaps, res.P50, res.P99, res.MaxWait)
	return nil
}
