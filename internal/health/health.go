package health

import (
	"context"
	"encoding/json"
	"time"

	"github.com/seventv/deepzoom/internal/global"
	"github.com/seventv/deepzoom/internal/instance"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type status struct {
	S3        bool                     `json:"s3"`
	Scheduler *instance.SchedulerStats `json:"scheduler,omitempty"`
}

func New(gCtx global.Context) <-chan struct{} {
	done := make(chan struct{})

	srv := fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if err := recover(); err != nil {
					zap.S().Errorw("panic in health",
						"panic", err,
					)
				}
			}()

			st := status{S3: true}

			if gCtx.Inst().S3 != nil {
				lCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
				if _, err := gCtx.Inst().S3.ListBuckets(lCtx); err != nil {
					st.S3 = false
					zap.S().Warnw("s3 is not responding",
						"error", err,
					)
				}
				cancel()
			}

			schedulerDown := false
			if gCtx.Inst().Scheduler != nil {
				stats := gCtx.Inst().Scheduler.Stats()
				st.Scheduler = &stats
				if stats.Closed {
					schedulerDown = true
					zap.S().Warnw("scheduler is closed")
				}
			}

			if !st.S3 || schedulerDown {
				ctx.SetStatusCode(500)
			}

			body, err := json.Marshal(st)
			if err == nil {
				ctx.SetContentType("application/json")
				ctx.SetBody(body)
			}
		},
	}

	go func() {
		defer close(done)
		zap.S().Infow("Health enabled",
			"bind", gCtx.Config().Health.Bind,
		)

		if err := srv.ListenAndServe(gCtx.Config().Health.Bind); err != nil {
			zap.S().Fatalw("failed to bind health",
				"error", err,
			)
		}
	}()

	go func() {
		<-gCtx.Done()

		_ = srv.Shutdown()
	}()

	return done
}
