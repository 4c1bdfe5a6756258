package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/svcctx"
)

// VoiceResponse represents a voice in API responses.
type VoiceResponse struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// ListVoicesResponse contains the list of voices.
type ListVoicesResponse struct {
	Voices []VoiceResponse `json:"voices"`
}

// logicalVoices are always selectable: the archetype voice ids every
// configured TTS provider resolves to its own catalog.
var logicalVoices = []VoiceResponse{
	{VoiceID: "voice_narrator_f", Name: "Narrator (female)"},
	{VoiceID: "voice_narrator_m", Name: "Narrator (male)"},
	{VoiceID: "voice_adult_f", Name: "Adult female"},
	{VoiceID: "voice_adult_m", Name: "Adult male"},
	{VoiceID: "voice_young_f", Name: "Young female"},
	{VoiceID: "voice_young_m", Name: "Young male"},
	{VoiceID: "voice_child_f", Name: "Child female"},
	{VoiceID: "voice_child_m", Name: "Child male"},
	{VoiceID: "voice_androgynous", Name: "Androgynous"},
	{VoiceID: "voice_system", Name: "System/UI"},
}

// ListVoicesEndpoint handles GET /api/voices.
type ListVoicesEndpoint struct{}

func (e *ListVoicesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/voices", e.handler
}

// handler godoc
//
//	@Summary		List voices
//	@Description	List logical archetype voices plus provider voice catalogs
//	@Tags			voices
//	@Produce		json
//	@Success		200	{object}	ListVoicesResponse
//	@Router			/api/voices [get]
func (e *ListVoicesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := ListVoicesResponse{
		Voices: append([]VoiceResponse(nil), logicalVoices...),
	}

	// Provider catalogs are best-effort: a provider that cannot list
	// voices right now does not fail the request.
	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		for _, provider := range registry.TTSChain() {
			lister, ok := provider.(providers.VoicesLister)
			if !ok {
				continue
			}
			voices, err := lister.ListVoices(r.Context())
			if err != nil {
				if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
					logger.Warn("voice catalog fetch failed", "provider", provider.Name(), "error", err)
				}
				continue
			}
			for _, v := range voices {
				resp.Voices = append(resp.Voices, VoiceResponse{
					VoiceID:     v.VoiceID,
					Name:        v.Name,
					Description: v.Description,
					Provider:    provider.Name(),
				})
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ListVoicesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List selectable voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListVoicesResponse
			if err := client.Get(cmd.Context(), "/api/voices", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
