package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bugsnag/panicwrap"
	"github.com/seventv/deepzoom/internal/configure"
	"github.com/seventv/deepzoom/internal/deepzoom"
	"github.com/seventv/deepzoom/internal/engine"
	"github.com/seventv/deepzoom/internal/global"
	"github.com/seventv/deepzoom/internal/health"
	"github.com/seventv/deepzoom/internal/monitoring"
	"github.com/seventv/deepzoom/internal/scheduler"
	"github.com/seventv/deepzoom/internal/svc/prometheus"
	"github.com/seventv/deepzoom/internal/svc/s3"
	"github.com/seventv/deepzoom/task"
	"go.uber.org/zap"
)

var (
	Version = "development"
	Unix    = ""
	Time    = "unknown"
	User    = "unknown"
)

func init() {
	debug.SetGCPercent(2000)
	if i, err := strconv.Atoi(Unix); err == nil {
		Time = time.Unix(int64(i), 0).Format(time.RFC3339)
	}
}

func main() {
	config := configure.New()

	exitStatus, err := panicwrap.BasicWrap(func(s string) {
		zap.S().Error("panic: ", s)
	})
	if err != nil {
		zap.S().Errorw("failed to setup panic handler: ",
			"error", err,
		)
		os.Exit(2)
	}

	if exitStatus >= 0 {
		os.Exit(exitStatus)
	}

	if !config.NoHeader {
		zap.S().Info("Deep Zoom Tiler")
		zap.S().Infof("Version: %s", Version)
		zap.S().Infof("build.Time: %s", Time)
		zap.S().Infof("build.User: %s", User)
	}

	zap.S().Debug("MaxProcs: ", runtime.GOMAXPROCS(0))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	gCtx, cancel := global.WithCancel(global.New(context.Background(), config))

	gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{
		Labels: config.Monitoring.Labels.ToPrometheus(),
	})

	if config.S3.Region != "" || config.S3.Endpoint != "" {
		gCtx.Inst().S3, err = s3.New(gCtx, s3.Options{
			Region:         config.S3.Region,
			Endpoint:       config.S3.Endpoint,
			AccessToken:    config.S3.AccessToken,
			SecretKey:      config.S3.SecretKey,
			ForcePathStyle: config.S3.ForcePathStyle,
		})
		if err != nil {
			zap.S().Fatalw("failed to setup s3",
				"error", err,
			)
		}
	}

	gCtx.Inst().Scheduler = scheduler.New(scheduler.Options{
		MaxConcurrency:  config.Worker.MaxConcurrency,
		MaxInitAttempts: config.Worker.MaxInitAttempts,
		Quality:         config.Worker.Quality,
		Factory:         engine.NewImaging,
		Prometheus:      gCtx.Inst().Prometheus,
	})

	wg := sync.WaitGroup{}

	if gCtx.Config().Health.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-health.New(gCtx)
		}()
	}
	if gCtx.Config().Monitoring.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-monitoring.New(gCtx)
		}()
	}

	exitCode := 0
	done := make(chan struct{})
	shutdown := sync.Once{}
	stop := func() {
		shutdown.Do(func() {
			cancel()
			go func() {
				select {
				case <-time.After(time.Minute):
				case <-sig:
				}
				zap.S().Fatal("force shutdown")
			}()

			zap.S().Info("shutting down")

			_ = gCtx.Inst().Scheduler.Close()

			wg.Wait()

			close(done)
		})
	}

	go func() {
		<-sig
		stop()
	}()

	zap.S().Info("running")

	if config.Job.Input.File != "" || config.Job.Input.Bucket != "" {
		go func() {
			result := deepzoom.Run(gCtx, deepzoom.JobFromConfig(config))
			if result.State == task.ResultStateFailed {
				exitCode = 1
			}
			stop()
		}()
	}

	<-done

	zap.S().Info("shutdown")
	os.Exit(exitCode)
}
