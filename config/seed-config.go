package config

type SeedConfig struct {
	Enabled bool
	Records int
	Workers int
}

func NewSeedConfig() *SeedConfig {
	return &SeedConfig{
		Records: 1000,
		Workers: 4,
	}
}
