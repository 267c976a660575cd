package main

import "time"

type Config struct {
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	NumberOfWrapWorkers  int           `env:"NUMBER_OF_WRAP_WORKERS,required=true"`
	WrapQueueSize        int           `env:"WRAP_QUEUE_SIZE,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`
	DerivationTimeout    time.Duration `env:"DERIVATION_TIMEOUT,required=true"`
	TokenSecret          string        `env:"TOKEN_SECRET,required=true"`
	TokenDuration        time.Duration `env:"TOKEN_DURATION,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=5001"`
}
