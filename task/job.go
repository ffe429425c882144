package task

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Job is one pyramid build: read the input, tile it, write the outputs.
type Job struct {
	ID       string    `json:"id"`
	Input    JobInput  `json:"input"`
	Output   JobOutput `json:"output"`
	TileSize int       `json:"tile_size"` // 512
	Quality  int       `json:"quality"`   // 95
}

type JobInput struct {
	File   string `json:"file"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type JobOutput struct {
	File         string `json:"file"`
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	ACL          string `json:"acl"`
	CacheControl string `json:"cache_control"`
}

func (j Job) Validate() error {
	return validation.ValidateStruct(&j,
		validation.Field(&j.ID, validation.Required),
		validation.Field(&j.Input),
		validation.Field(&j.Output),
		validation.Field(&j.TileSize, validation.Required, validation.Min(1)),
		validation.Field(&j.Quality, validation.Min(0), validation.Max(100)),
	)
}

func (i JobInput) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.File, validation.When(i.Bucket == "", validation.Required.Error("either a file or a bucket is required"))),
		validation.Field(&i.Key, validation.When(i.Bucket != "", validation.Required)),
	)
}

func (o JobOutput) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.File, validation.When(o.Bucket == "", validation.Required.Error("either a file or a bucket is required"))),
	)
}
