package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/roach88/witnessgen/internal/aggregate"
	"github.com/roach88/witnessgen/internal/blob"
	"github.com/roach88/witnessgen/internal/config"
	"github.com/roach88/witnessgen/internal/ir"
	"github.com/roach88/witnessgen/internal/logging"
	"github.com/roach88/witnessgen/internal/prover"
	"github.com/roach88/witnessgen/internal/rounds"
	"github.com/roach88/witnessgen/internal/store"
)

// runtime is every handle a command needs, opened from config.
type runtime struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *store.Store
	env     *rounds.Env
	closers []io.Closer
}

// openRuntime opens the store, blob backend and prover named by cfg. Logs
// go to logOut.
func openRuntime(cfg *config.Config, logOut io.Writer) (*runtime, error) {
	log, err := logging.New(logOut, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid logging config", err)
	}
	rt := &runtime{cfg: cfg, log: log}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	rt.store = st
	rt.closers = append(rt.closers, st)

	raw, err := rt.openBlobs()
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open blob store", err)
	}
	blobs := blob.WriteOnce(raw)

	codec, err := cfg.Codec()
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "invalid blob config", err)
	}
	topology, err := cfg.IRTopology()
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "invalid topology", err)
	}

	var (
		p    prover.Prover
		keys prover.Keystore
	)
	switch cfg.Prover.Backend {
	case config.ProverGnark:
		logging.RouteGnark(log)
		p = prover.NewGnarkProver(log)
		keys = prover.NewGnarkKeystore(cfg.Prover.KeysDir, log)
	default:
		p = prover.Marker{}
		keys = prover.NewMemKeystore(ir.Rounds()...)
	}

	rt.env = &rounds.Env{
		Blobs:          blobs,
		Codec:          codec,
		Store:          st,
		Prover:         p,
		Keys:           keys,
		Builder:        aggregate.NewBuilder(blobs, codec, topology, aggregate.WithLogger(log)),
		MaxParallelism: cfg.Prover.MaxParallelism,
		Log:            log,
	}

	log.Debug().
		Str("db", cfg.Database.Path).
		Str("blobs", cfg.Blobs.Backend).
		Str("prover", cfg.Prover.Backend).
		Msg("runtime ready")
	return rt, nil
}

func (rt *runtime) openBlobs() (blob.Store, error) {
	switch rt.cfg.Blobs.Backend {
	case config.BlobMem:
		return blob.NewMemStore(), nil
	case config.BlobFile:
		return blob.NewFileStore(rt.cfg.Blobs.Path)
	case config.BlobLevel:
		l, err := blob.OpenLevelStore(rt.cfg.Blobs.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, l)
		return l, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", rt.cfg.Blobs.Backend)
	}
}

// Close closes every opened handle, last opened first.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
