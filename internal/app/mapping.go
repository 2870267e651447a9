package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cronkeep/internal/config"
	"cronkeep/internal/gate"
	"cronkeep/internal/job"
	"cronkeep/internal/logsink"
	"cronkeep/internal/scheduler"
	"cronkeep/internal/storage"
	logx "cronkeep/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	if cfg.Scheduler == nil {
		return scheduler.Config{}
	}
	return scheduler.Config{Timezone: cfg.Scheduler.Timezone, HistorySize: cfg.Scheduler.HistorySize}
}

// buildJobs registers every configured job in file order. Jobs sharing a
// log_path share one sink. The returned closers release sql handles.
func buildJobs(cfg *config.Config, sinks *logsink.Pool) (*job.Registry, []io.Closer, error) {
	reg := job.NewRegistry()
	var closers []io.Closer
	fail := func(err error) (*job.Registry, []io.Closer, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}

	for _, jc := range cfg.Jobs {
		def, closer, err := buildJob(jc, sinks)
		if err != nil {
			return fail(fmt.Errorf("job %s: %w", jc.ID, err))
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		if err := reg.Register(def); err != nil {
			return fail(err)
		}
	}
	return reg, closers, nil
}

func buildJob(jc config.JobConfig, sinks *logsink.Pool) (job.Definition, io.Closer, error) {
	def := job.Definition{ID: strings.TrimSpace(jc.ID), Label: jc.Label}

	g, err := gate.ParseGranularity(jc.Granularity)
	if err != nil {
		return def, nil, err
	}
	def.Granularity = g
	if strings.TrimSpace(jc.Earliest) != "" {
		tod, err := gate.ParseTimeOfDay(jc.Earliest)
		if err != nil {
			return def, nil, err
		}
		def.Earliest = &tod
	}
	if def.MarkerPolicy, err = job.ParseMarkerPolicy(jc.MarkerPolicy); err != nil {
		return def, nil, err
	}
	if p := strings.TrimSpace(jc.LogPath); p != "" {
		def.Sink = sinks.Get(p)
	}

	a := jc.Action
	timeout, err := config.ParseDurationField("action.timeout", a.Timeout)
	if err != nil {
		return def, nil, err
	}
	switch strings.ToLower(strings.TrimSpace(a.Type)) {
	case "command":
		def.Action = &job.CommandAction{Name: a.Command, Args: a.Args, Dir: a.Dir, Env: a.Env, Timeout: timeout}
		return def, nil, nil
	case "sql":
		act, err := job.OpenSQLAction(a.DSN, a.Query, timeout)
		if err != nil {
			return def, nil, err
		}
		def.Action = act
		return def, act, nil
	case "http":
		def.Action = &job.HTTPAction{
			Client:  &http.Client{},
			Method:  a.Method,
			URL:     a.URL,
			Header:  a.Headers,
			Body:    a.Body,
			Timeout: timeout,
		}
		return def, nil, nil
	default:
		return def, nil, errors.New("unknown action type " + a.Type)
	}
}
