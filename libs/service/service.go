// Package service provides the Start/Stop/Quit lifecycle embedded by
// the long-running consensus components (State, Reactor), matching
// cometbft's libs/service.BaseService.
package service

import (
	"fmt"
	"sync/atomic"

	"github.com/reimint/reimint/libs/log"
)

const (
	stopped uint32 = iota
	starting
	running
	stopping
)

// Service is the lifecycle every long-running component implements.
type Service interface {
	Start() error
	Stop() error
	IsRunning() bool
	Quit() <-chan struct{}
	String() string
	SetLogger(log.Logger)
}

// Implementation is embedded by a concrete service and supplies the
// OnStart/OnStop hooks BaseService calls during the transition.
type Implementation interface {
	OnStart() error
	OnStop()
}

// BaseService implements Service's bookkeeping; concrete types embed it
// and implement Implementation.
type BaseService struct {
	Logger  log.Logger
	name    string
	state   uint32
	quit    chan struct{}
	impl    Implementation
}

// NewBaseService constructs a BaseService wrapping impl. impl.OnStart is
// invoked once per Start() call that wins the starting race.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		Logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start transitions stopped -> running, calling impl.OnStart exactly
// once. Calling Start on an already-running or already-stopped service
// returns an error.
func (bs *BaseService) Start() error {
	select {
	case <-bs.quit:
		return fmt.Errorf("service: %s already stopped", bs.name)
	default:
	}
	if !atomic.CompareAndSwapUint32(&bs.state, stopped, starting) {
		return fmt.Errorf("service: %s cannot be started, current state invalid", bs.name)
	}
	bs.Logger.Info("starting service", "service", bs.name)
	if err := bs.impl.OnStart(); err != nil {
		atomic.StoreUint32(&bs.state, stopped)
		return err
	}
	atomic.StoreUint32(&bs.state, running)
	return nil
}

// Stop transitions running -> stopped, calling impl.OnStop and closing
// Quit(). Safe to call more than once; only the first call has effect.
func (bs *BaseService) Stop() error {
	if !atomic.CompareAndSwapUint32(&bs.state, running, stopping) {
		return fmt.Errorf("service: %s is not running", bs.name)
	}
	bs.Logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	close(bs.quit)
	atomic.StoreUint32(&bs.state, stopped)
	return nil
}

// IsRunning reports whether the service is currently in the running
// state.
func (bs *BaseService) IsRunning() bool {
	return atomic.LoadUint32(&bs.state) == running
}

// Quit returns a channel closed when the service stops.
func (bs *BaseService) Quit() <-chan struct{} {
	return bs.quit
}

func (bs *BaseService) String() string {
	return bs.name
}

// SetLogger overrides the logger after construction.
func (bs *BaseService) SetLogger(logger log.Logger) {
	bs.Logger = logger
}
