package deepzoom

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/seventv/common/utils"
	"github.com/seventv/deepzoom/internal/configure"
	"github.com/seventv/deepzoom/internal/global"
	"github.com/seventv/deepzoom/task"
	"go.uber.org/zap"
)

// JobFromConfig builds the job described by the job section of the config.
func JobFromConfig(config *configure.Config) task.Job {
	job := task.Job{
		ID:       config.Job.ID,
		TileSize: config.Pyramid.TileSize,
		Quality:  config.Worker.Quality,
		Input: task.JobInput{
			File:   config.Job.Input.File,
			Bucket: config.Job.Input.Bucket,
			Key:    config.Job.Input.Key,
		},
		Output: task.JobOutput{
			File:         config.Job.Output.File,
			Bucket:       config.Job.Output.Bucket,
			Prefix:       config.Job.Output.Prefix,
			ACL:          config.Job.Output.ACL,
			CacheControl: config.Job.Output.CacheControl,
		},
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	if job.TileSize <= 0 {
		job.TileSize = 512
	}

	if job.Quality <= 0 {
		job.Quality = task.DefaultQuality
	}

	return job
}

// Run executes one job and reports its result.
func Run(gCtx global.Context, job task.Job) task.Result {
	result := task.Result{
		ID:    job.ID,
		State: task.ResultStateFailed,
	}

	err := Worker{}.Work(gCtx, job, &result)
	if err != nil {
		result.State = task.ResultStateFailed
		result.Message = err.Error()

		zap.S().Errorw("job failed",
			"job_id", job.ID,
			"error", err,
		)
	}

	resultData, err := json.Marshal(result)
	if err != nil {
		zap.S().Errorw("failed to marshal result",
			"error", err,
		)
	} else {
		zap.S().Infow("job finished",
			"job_id", job.ID,
			"state", result.State.String(),
			"result", utils.B2S(resultData),
		)
	}

	return result
}
