package compliance

// Descriptor is the static compliance view of one provider. It is
// loaded once and shared read-only; the transparency fields are
// metadata for audit responses, not decision inputs.
type Descriptor struct {
	Name          string
	DefaultModel  string
	Region        string
	GDPRCompliant bool
	Text          bool
	Vision        bool
	Transparency  Transparency
}

// Transparency documents where and how a processor handles prompt data.
type Transparency struct {
	Processor         string
	Location          string
	RetentionPolicy   string
	SubProcessors     []string
	SecurityMeasures  string
	DataSubjectRights string
}

// DefaultTable returns the built-in provider compliance table. The
// order of compliant providers in fallbackPriority decides which one
// substitutes a non-compliant request.
func DefaultTable() []Descriptor {
	return []Descriptor{
		{
			Name:          "vertex_claude",
			DefaultModel:  "claude-3-5-sonnet-v2@20241022",
			Region:        "europe-west1",
			GDPRCompliant: true,
			Text:          true,
			Vision:        true,
			Transparency: Transparency{
				Processor:         "Google Cloud EMEA Ltd.",
				Location:          "Belgium (europe-west1)",
				RetentionPolicy:   "no training on customer data, zero retention configured",
				SubProcessors:     []string{"Anthropic PBC (model weights only)"},
				SecurityMeasures:  "encryption in transit and at rest, ISO 27001, SOC 2",
				DataSubjectRights: "GDPR Art. 15-22 honored via processor agreement",
			},
		},
		{
			Name:          "scaleway",
			DefaultModel:  "llama-3.1-70b-instruct",
			Region:        "fr-par",
			GDPRCompliant: true,
			Text:          true,
			Transparency: Transparency{
				Processor:         "Scaleway SAS",
				Location:          "Paris, France",
				RetentionPolicy:   "prompts not retained after inference",
				SecurityMeasures:  "encryption in transit and at rest, ISO 27001",
				DataSubjectRights: "GDPR Art. 15-22 honored directly",
			},
		},
		{
			Name:          "bedrock",
			DefaultModel:  "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Region:        "eu-central-1",
			GDPRCompliant: true,
			Text:          true,
			Transparency: Transparency{
				Processor:         "Amazon Web Services EMEA SARL",
				Location:          "Frankfurt, Germany (eu-central-1)",
				RetentionPolicy:   "no model training on customer data",
				SubProcessors:     []string{"Anthropic PBC (model weights only)"},
				SecurityMeasures:  "encryption in transit and at rest, C5, SOC 2",
				DataSubjectRights: "GDPR Art. 15-22 honored via DPA",
			},
		},
		{
			Name:          "ollama",
			DefaultModel:  "llama3.1",
			Region:        "self-hosted",
			GDPRCompliant: true,
			Text:          true,
			Transparency: Transparency{
				Processor:         "operator (self-hosted)",
				Location:          "on-premises",
				RetentionPolicy:   "no external data transfer",
				SecurityMeasures:  "deployment-dependent",
				DataSubjectRights: "handled by the operator",
			},
		},
		{
			Name:          "anthropic",
			DefaultModel:  "claude-3-5-sonnet-20241022",
			Region:        "us",
			GDPRCompliant: false,
			Text:          true,
			Vision:        true,
			Transparency: Transparency{
				Processor:        "Anthropic PBC",
				Location:         "United States",
				RetentionPolicy:  "up to 30 days for abuse monitoring",
				SecurityMeasures: "encryption in transit and at rest, SOC 2",
			},
		},
		{
			Name:          "openai",
			DefaultModel:  "gpt-4o-mini",
			Region:        "us",
			GDPRCompliant: false,
			Text:          true,
			Transparency: Transparency{
				Processor:        "OpenAI LLC",
				Location:         "United States",
				RetentionPolicy:  "up to 30 days for abuse monitoring",
				SecurityMeasures: "encryption in transit and at rest, SOC 2",
			},
		},
	}
}

// DefaultFallbackPriority is the fixed order in which compliant
// providers substitute a non-compliant one.
func DefaultFallbackPriority() []string {
	return []string{"vertex_claude", "scaleway", "bedrock", "ollama"}
}
