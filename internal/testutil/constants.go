package testutil

// Shared fixtures.
const (
	// ScenarioText holds a person, an organization and a city; the email
	// address is left to pattern recognizers.
	ScenarioText = "Contact John Smith at john@acme.com, he works at Acme Corp in Boston."

	// TestAPIKey is a syntactically plausible key for provider tests.
	TestAPIKey = "test-api-key-0123456789"
)
