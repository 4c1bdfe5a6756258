package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/svcctx"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status    string   `json:"status"`
	Vision    []string `json:"vision_providers,omitempty"`
	TTS       []string `json:"tts_providers,omitempty"`
	TTSChain  []string `json:"tts_chain,omitempty"`
	StoreType string   `json:"store,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

// handler godoc
//
//	@Summary		Check server health
//	@Description	Reports server status and configured providers
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		resp.Vision = registry.ListVision()
		resp.TTS = registry.ListTTS()
		for _, p := range registry.TTSChain() {
			resp.TTSChain = append(resp.TTSChain, p.Name())
		}
	}
	if svcctx.StoreFrom(r.Context()) != nil {
		resp.StoreType = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			if len(resp.TTSChain) > 0 {
				fmt.Printf("TTS chain: %v\n", resp.TTSChain)
			}
			return nil
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
