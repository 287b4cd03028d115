package studio

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	Logger zerolog.Logger = zerolog.Nop()
	// Redis is nil unless REDIS_ENABLED is set and the server answered a ping.
	Redis *redis.Client
)
