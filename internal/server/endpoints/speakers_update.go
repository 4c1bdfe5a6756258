package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/svcctx"
	"github.com/jackzampolin/panelvox/internal/types"
)

// UpdateSpeakerResponse reports how many bubbles a correction touched.
type UpdateSpeakerResponse struct {
	SpeakerID string `json:"speaker_id"`
	Updated   int    `json:"updated"`
}

// UpdateSpeakerEndpoint handles PATCH /api/speakers/{id}: rename a
// speaker and/or change its voice. A voice change regenerates audio for
// every affected bubble.
type UpdateSpeakerEndpoint struct{}

func (e *UpdateSpeakerEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/speakers/{id}", e.handler
}

// handler godoc
//
//	@Summary		Update a speaker
//	@Description	Patch the speaker's display name and/or voice across stored chapters
//	@Tags			speakers
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Speaker ID"
//	@Param			request	body		types.SpeakerUpdate	true	"Fields to update"
//	@Success		200		{object}	UpdateSpeakerResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/speakers/{id} [patch]
func (e *UpdateSpeakerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	processor := svcctx.ProcessorFrom(r.Context())
	if processor == nil {
		writeError(w, http.StatusServiceUnavailable, "processor not initialized")
		return
	}

	var update types.SpeakerUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if update.DisplayName == "" && update.VoiceID == "" {
		writeError(w, http.StatusBadRequest, "display_name or voice_id required")
		return
	}

	speakerID := r.PathValue("id")
	updated, err := processor.UpdateSpeaker(r.Context(), speakerID, update)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if updated == 0 {
		writeError(w, http.StatusNotFound, "no bubbles matched speaker "+speakerID)
		return
	}

	writeJSON(w, http.StatusOK, UpdateSpeakerResponse{
		SpeakerID: speakerID,
		Updated:   updated,
	})
}

func (e *UpdateSpeakerEndpoint) Command(getServerURL func() string) *cobra.Command {
	var name, voiceID string
	cmd := &cobra.Command{
		Use:   "speaker <speaker_id>",
		Short: "Rename a speaker or change its voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp UpdateSpeakerResponse
			update := types.SpeakerUpdate{DisplayName: name, VoiceID: voiceID}
			if err := client.Patch(cmd.Context(), "/api/speakers/"+args[0], update, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&voiceID, "voice", "", "New voice id (regenerates audio)")
	return cmd
}
