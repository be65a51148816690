package seeds

// SeedFile is one YAML document listing subscriptions to create at startup.
type SeedFile struct {
	Owner         string         `yaml:"owner"`
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// Subscription is a URL to submit for intake, with an optional title hint
// and owner override.
type Subscription struct {
	URL   string `yaml:"url"`
	Title string `yaml:"title"`
	Owner string `yaml:"owner"`
}
