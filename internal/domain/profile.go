package domain

// AcceptancePolicy holds the challenge acceptance flags of a bot profile.
type AcceptancePolicy struct {
	EnableClassical   bool `yaml:"enable_classical"`
	EnableRapid       bool `yaml:"enable_rapid"`
	DisableBlitz      bool `yaml:"disable_blitz"`
	DisableBullet     bool `yaml:"disable_bullet"`
	EnableUltraBullet bool `yaml:"enable_ultrabullet"`
	EnableCasual      bool `yaml:"enable_casual"`
	DisableRated      bool `yaml:"disable_rated"`
}

// BotProfile is resolved once at startup and shared read-only by every session.
type BotProfile struct {
	Name          string            `yaml:"name"`
	Policy        AcceptancePolicy  `yaml:"policy"`
	SearchOptions map[string]string `yaml:"search_options"`
	BookPath      string            `yaml:"book_path"`
	BookMixedness int               `yaml:"book_mixedness"`
	MaxBookDepth  int               `yaml:"max_book_depth"`
}
