package models

// Client is an MSP-managed client organization, referenced by id + display name
type Client struct {
	ID   string `json:"client_id"`
	Name string `json:"name"`
}

// Environment is a named grouping of cloud subscriptions belonging to a client,
// the unit an assessment runs against
type Environment struct {
	ID              string   `json:"environment_id"`
	Name            string   `json:"name"`
	SubscriptionIDs []string `json:"subscription_ids,omitempty"`
}
