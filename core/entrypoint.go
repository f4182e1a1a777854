package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/encodeous/sospf/perf"
	"github.com/encodeous/sospf/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

func setupDebugging() func() {
	cleanup := func() {}
	if state.DBG_trace {
		f, err := os.Create("trace.out")
		if err != nil {
			log.Fatal(err)
		}
		if err = trace.Start(f); err != nil {
			log.Println("failed to start tracing:", err)
			_ = f.Close()
		} else {
			log.Println("Started tracing")
			cleanup = func() {
				trace.Stop()
				_ = f.Close()
			}
		}
	}
	if state.DBG_debug {
		go func() {
			log.Println(http.ListenAndServe(state.DebugAddr, nil))
		}()
	}
	return cleanup
}

func readLocalConfig(configPath string) (*state.LocalCfg, error) {
	var cfg state.LocalCfg
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Bootstrap runs one router from its config file until the operator quits or the process is signalled
func Bootstrap(configPath, logPath string, verbose bool, in io.Reader, out io.Writer) error {
	defer setupDebugging()()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	cfg, err := readLocalConfig(configPath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	state.ExpandLocalConfig(cfg)
	if err = state.LocalConfigValidator(cfg); err != nil {
		return err
	}

	s, err := New(*cfg, level, os.Stderr)
	if err != nil {
		return err
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-s.Context.Done():
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- MainLoop(s)
	}()

	s.Log.Info("router has been initialized. type help for a list of commands.")
	go RunTerminal(s.Context, Get[*SospfRouter](s), in, out)
	return <-done
}

// New creates a router with all of its modules initialized. The router does not process events until MainLoop is called.
func New(cfg state.LocalCfg, logLevel slog.Level, logOut io.Writer) (*state.State, error) {
	ctx, cancel := context.WithCancelCause(context.Background())

	dispatch := make(chan func(env *state.State) error, state.DispatchBufferSize)

	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(logOut, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: cfg.Addr.String(),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			cancel(err)
			return nil, err
		}
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			cancel(err)
			return nil, err
		}
		context.AfterFunc(ctx, func() {
			_ = f.Close()
		})
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	logger := slog.New(
		slogmulti.Fanout(handlers...))

	s := &state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			LocalCfg:        cfg,
			Log:             logger,
		},
	}

	s.Log.Debug("init modules")
	err := initModules(s)
	if err != nil {
		Stop(s)
		return nil, err
	}
	s.Log.Debug("init modules complete")
	return s, nil
}

func initModules(s *state.State) error {
	var modules []state.Module
	modules = append(modules, &SospfTrace{})
	modules = append(modules, &Transport{})
	modules = append(modules, &SospfRouter{})

	for _, module := range modules {
		if err := module.Init(s); err != nil {
			return err
		}
		s.Modules[reflect.TypeOf(module).String()] = module
	}
	return nil
}

// MainLoop runs dispatched functions until the router is cancelled, then stops the router
func MainLoop(s *state.State) error {
	s.Log.Debug("started main loop")
	for {
		select {
		case fun := <-s.DispatchChannel:
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatchWarn {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(s.DispatchChannel))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

// Stop cancels the router and cleans up its modules in reverse order of initialization
func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Debug("cleaning up modules")
	order := []string{
		reflect.TypeFor[*SospfRouter]().String(),
		reflect.TypeFor[*Transport]().String(),
		reflect.TypeFor[*SospfTrace]().String(),
	}
	for _, moduleName := range order {
		module, ok := s.Modules[moduleName]
		if !ok {
			continue
		}
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
