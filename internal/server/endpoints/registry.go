package endpoints

import (
	"github.com/jackzampolin/panelvox/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},

		// Chapter endpoints
		&CreateChapterEndpoint{},
		&GetChapterEndpoint{},

		// Job polling
		&GetJobEndpoint{},

		// Speaker corrections
		&UpdateSpeakerEndpoint{},

		// Voice catalog
		&ListVoicesEndpoint{},
	}
}
