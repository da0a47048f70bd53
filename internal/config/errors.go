package config

import "errors"

var (
	// ErrInvalidConcurrency is returned when the worker count is not positive.
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")
	// ErrInvalidHostParallelism is returned when the per-host cap is not positive.
	ErrInvalidHostParallelism = errors.New("host_parallelism must be greater than 0")
	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("request_timeout must be greater than 0")
	// ErrInvalidMaxRetries is returned when the attempt budget is not positive.
	ErrInvalidMaxRetries = errors.New("max_retries must be greater than 0")
	// ErrInvalidRetryDelay is returned when the backoff window is inconsistent.
	ErrInvalidRetryDelay = errors.New("retry delays must satisfy 0 < retry_base_delay <= retry_max_delay")
)
