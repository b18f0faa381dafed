package scoreapplicant

import "time"

type Config struct {
	Timeout       time.Duration
	CapacityLimit int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       10 * time.Second,
		CapacityLimit: 150,
	}
}
